package jobs

import (
	"errors"

	"github.com/alfredjeanlab/venuesync/internal/geocode"
	"github.com/alfredjeanlab/venuesync/internal/model"
	"github.com/alfredjeanlab/venuesync/internal/photos"
	"github.com/alfredjeanlab/venuesync/internal/schedule"
	"github.com/alfredjeanlab/venuesync/internal/sources"
)

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Permanent marks err as bad input: the job is discarded without further
// attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Fatal marks err as a configuration failure that every attempt would hit.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// IsFatal reports whether err was marked with Fatal.
func IsFatal(err error) bool {
	var f *fatalError
	return errors.As(err, &f)
}

// Classify marks known permanent and configuration errors. Anything else
// is returned unchanged and treated as transient.
func Classify(err error) error {
	if err == nil || IsPermanent(err) || IsFatal(err) {
		return err
	}

	switch {
	case errors.Is(err, geocode.ErrMissingAPIKey),
		errors.Is(err, photos.ErrMissingAPIKey),
		errors.Is(err, sources.ErrMissingAPIKey):
		return Fatal(err)

	case errors.Is(err, schedule.ErrNoWeekday),
		errors.Is(err, schedule.ErrNoTime),
		errors.Is(err, geocode.ErrBadResponse),
		errors.Is(err, geocode.ErrNoResult):
		return Permanent(err)
	}

	var ve *model.ValidationError
	if errors.As(err, &ve) {
		return Permanent(err)
	}
	var se *sources.StatusError
	if errors.As(err, &se) && se.Permanent() {
		return Permanent(err)
	}
	return err
}
