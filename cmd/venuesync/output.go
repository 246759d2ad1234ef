package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/alfredjeanlab/venuesync/internal/model"
	"github.com/alfredjeanlab/venuesync/internal/ui"
)

var weekdays = [...]string{"", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func printEventRow(venue string, e *model.Event) {
	day := ""
	if e.DayOfWeek >= 1 && e.DayOfWeek <= 7 {
		day = weekdays[e.DayOfWeek]
	}
	fmt.Printf("%-30s %s %s %s\n", venue, day, e.StartTime, ui.RenderMuted(string(e.Frequency)))
}

func printPlace(p *model.Place) {
	if jsonOutput {
		printJSON(p)
		return
	}
	fmt.Printf("Place ID:  %s\n", p.PlaceID)
	if p.Name != "" {
		fmt.Printf("Name:      %s\n", p.Name)
	}
	fmt.Printf("Address:   %s\n", p.FormattedAddress)
	if p.Location != nil {
		fmt.Printf("Location:  %.6f, %.6f\n", p.Location.Lat, p.Location.Lng)
	}
	parts := []string{}
	for _, s := range []string{p.City.Name, p.Country.Name} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) > 0 {
		fmt.Printf("City:      %s\n", strings.Join(parts, ", "))
	}
}
