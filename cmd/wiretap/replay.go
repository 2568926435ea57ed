package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"regexp"

	"github.com/sweeney/asterisk-callhook/internal/ami"
	"github.com/sweeney/asterisk-callhook/internal/config"
	"github.com/sweeney/asterisk-callhook/internal/dispatch"
	"github.com/sweeney/asterisk-callhook/internal/notify"
	"github.com/sweeney/asterisk-callhook/internal/rules"
)

// printSink writes each notification as one JSON line.
type printSink struct {
	w io.Writer
}

func (s printSink) Send(p notify.Payload) {
	body, err := notify.Encode(p)
	if err != nil {
		fmt.Fprintf(s.w, "# %s: %v\n", p.EventName(), err)
		return
	}
	fmt.Fprintf(s.w, "%s\n", body)
}

// replayFile runs a capture through the rule table offline. Rules come from
// configPath when set, otherwise the defaults with the given channel pattern.
func replayFile(path, configPath, channel string, w io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	table, err := replayTable(configPath, channel)
	if err != nil {
		return err
	}

	d := dispatch.New(table, printSink{w: w}, dispatch.WithLogger(log.New(os.Stderr, "", 0)))
	events, sent := 0, 0
	for _, evt := range ami.ParseBytes(data) {
		if evt.IsResponse() {
			continue
		}
		events++
		sent += d.Dispatch(evt)
	}
	fmt.Fprintf(os.Stderr, "%d events, %d notifications\n", events, sent)
	return nil
}

func replayTable(configPath, channel string) (*rules.Table, error) {
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		return dispatch.BuildTable(cfg.Rules)
	}

	re, err := regexp.Compile(channel)
	if err != nil {
		return nil, fmt.Errorf("channel pattern: %w", err)
	}
	opts := dispatch.DefaultOptions()
	opts.IncomingChannel = re

	table := rules.NewTable()
	if err := dispatch.RegisterDefaults(table, opts); err != nil {
		return nil, err
	}
	return table, nil
}
