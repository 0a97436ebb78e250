// Command seeder fills a Tickarr database with demo displays, widgets and
// reset schedules for local development.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/mescon/Tickarr/internal/clock"
	"github.com/mescon/Tickarr/internal/db"
	"github.com/mescon/Tickarr/internal/display"
	"github.com/mescon/Tickarr/internal/eventbus"
	"github.com/mescon/Tickarr/internal/services"
	"github.com/mescon/Tickarr/internal/widget"
)

var demo = &display.Layout{
	Presets: map[string]widget.Options{
		"standup": {
			Mask:        widget.Ptr("mm:ss"),
			Type:        widget.Ptr(string(widget.CountDown)),
			InitialTime: widget.Ptr(int64(15 * 60 * 1000)),
		},
		"uptime": {
			Mask: widget.Ptr("hh:mm:ss"),
		},
	},
	Elements: []display.ElementSeed{
		{ID: "lobby", Label: "Lobby screen", Widgets: []display.WidgetSeed{{Preset: "uptime"}}},
		{ID: "standup", Label: "Stand-up timer", Widgets: []display.WidgetSeed{{Preset: "standup"}}},
		{ID: "kitchen", Label: "Kitchen", Widgets: []display.WidgetSeed{{
			Options: widget.Options{
				Mask:        widget.Ptr("m:ss"),
				Type:        widget.Ptr(string(widget.CountDown)),
				InitialTime: widget.Ptr(int64(4 * 60 * 1000)),
				AutoStart:   widget.Ptr(false),
			},
		}}},
	},
}

func main() {
	dbPath := flag.String("db", "./tickarr.db", "Database file to seed")
	flag.Parse()

	repo, err := db.NewRepository(*dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer repo.GracefulClose()

	fmt.Println("Seeding database...")

	eb := eventbus.NewEventBus(repo.DB)
	defer eb.Shutdown()

	board := display.NewBoard(display.BoardConfig{
		Env:     widget.Environment{Clock: clock.NewRealClock(), Events: eb},
		Store:   repo,
		Presets: demo.Presets,
	})
	if _, err := board.Restore(context.Background()); err != nil {
		log.Fatalf("Failed to load existing widgets: %v", err)
	}
	if err := board.Seed(demo); err != nil {
		log.Fatalf("Failed to seed displays: %v", err)
	}

	// Re-arm the stand-up countdown every weekday morning
	scheduler := services.NewSchedulerService(repo, board, 0)
	for _, info := range board.Widgets() {
		if info.HostID != "standup" {
			continue
		}
		existing, err := scheduler.ListSchedules(info.ID)
		if err != nil {
			log.Fatalf("Failed to list schedules: %v", err)
		}
		if len(existing) > 0 {
			continue
		}
		if _, err := scheduler.AddSchedule(info.ID, "0 9 * * 1-5"); err != nil {
			log.Printf("Failed to add schedule: %v", err)
		}
	}

	board.StopAll()
	fmt.Printf("Seeding complete: %d elements, %d widgets\n", board.ElementCount(), len(board.Widgets()))
}
