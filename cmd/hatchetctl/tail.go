package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"hatchet/internal/core/config"
	"hatchet/internal/core/store"
)

func newTailEventsCommand(configPath *string) *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "tail-events",
		Short: "Print the tail of the event log, optionally following new appends.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return &exitCodeError{code: 1, err: err}
			}
			log, err := store.NewEventLog(filepath.Join(cfg.WorkingDirectory, "events.jsonl"))
			if err != nil {
				return &exitCodeError{code: 1, err: err}
			}

			evts, err := log.Tail(50)
			if err != nil {
				return &exitCodeError{code: 1, err: err}
			}
			for _, e := range evts {
				fmt.Printf("%s %s -> %v\n", e.Topic, e.SourceHat, e.Payload)
			}
			offset, err := log.Size()
			if err != nil {
				return &exitCodeError{code: 1, err: err}
			}
			if !follow {
				return nil
			}
			for {
				time.Sleep(time.Second)
				evts, err := log.IterFrom(offset)
				if err != nil {
					return &exitCodeError{code: 1, err: err}
				}
				for _, e := range evts {
					fmt.Printf("%s %s -> %v\n", e.Topic, e.SourceHat, e.Payload)
				}
				offset, err = log.Size()
				if err != nil {
					return &exitCodeError{code: 1, err: err}
				}
			}
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep tailing new events as they are appended")
	return cmd
}
