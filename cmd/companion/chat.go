package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/hearme/internal/config"
	"github.com/thebtf/hearme/internal/watcher"
	"github.com/thebtf/hearme/pkg/models"
)

const chatBanner = "HearMe companion. Type a message, /quit to leave."

func (a *app) chat(ctx context.Context, args []string) error {
	fs := a.newFlagSet("chat")
	user := fs.String("user", "companion", "user id sent with each message")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	if stop := a.watchSettings(); stop != nil {
		defer stop()
	}

	done := make(chan struct{})
	defer close(done)
	lines := readLines(a.in, done)

	fmt.Fprintln(a.out, chatBanner)
	for {
		fmt.Fprint(a.out, "> ")
		var in inputLine
		select {
		case <-ctx.Done():
			fmt.Fprintln(a.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(a.out)
				return nil
			}
			if l.err != nil {
				fmt.Fprintln(a.out)
				return l.err
			}
			in = l
		}

		line := strings.TrimSpace(in.text)
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}

		pred, err := a.resolver.Predict(ctx, line, *user)
		if err != nil {
			fmt.Fprintln(a.out, "!", err)
			continue
		}
		a.printReply(pred)

		// Best effort; the resolver logs failures.
		_ = a.resolver.LogConversation(ctx, models.ConversationEntry{
			UserID:     *user,
			Message:    line,
			Prediction: pred.Label,
			Symptoms:   pred.Symptoms,
		})
	}
}

// inputLine is one line read from the terminal, or the error that ended input.
type inputLine struct {
	err  error
	text string
}

// readLines scans r in the background so the prompt can also wait on the
// context. The channel is closed at end of input or once done is closed.
func readLines(r io.Reader, done <-chan struct{}) <-chan inputLine {
	ch := make(chan inputLine)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case ch <- inputLine{text: scanner.Text()}:
			case <-done:
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case ch <- inputLine{err: err}:
			case <-done:
			}
		}
	}()
	return ch
}

// printReply renders the structured and generated parts of a reply.
func (a *app) printReply(pred *models.Prediction) {
	if pred.Reply == nil {
		fmt.Fprintf(a.out, "[%s]\n", pred.Label)
		return
	}
	s := pred.Reply.Structured
	for _, line := range []string{s.ImmediateResponse, s.FollowUpQuestion, s.SuggestedAction, pred.Reply.Generated} {
		if line != "" {
			fmt.Fprintln(a.out, line)
		}
	}
	fmt.Fprintf(a.out, "[%s %.0f%%]\n", pred.Label, pred.Probabilities[pred.Label]*100)
}

// watchSettings reloads the candidate list and re-resolves whenever the
// settings file changes. It returns nil when there is nothing to watch.
func (a *app) watchSettings() func() {
	if a.settingsPath == "" {
		return nil
	}
	if _, err := os.Stat(filepath.Dir(a.settingsPath)); err != nil {
		return nil
	}

	w, err := watcher.New(a.settingsPath, a.reloadSettings)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create settings watcher")
		return nil
	}
	if err := w.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start settings watcher")
		return nil
	}
	log.Debug().Str("path", a.settingsPath).Msg("Watching settings")
	return func() { _ = w.Stop() }
}

func (a *app) reloadSettings() {
	cfg, err := config.Reload()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to reload settings, keeping current backends")
		return
	}
	a.resolver.SetCandidates(cfg.BackendURLs)
	a.resolver.Reset()
	log.Info().Strs("candidates", a.resolver.Candidates()).Msg("Settings changed, backend will be re-resolved")
}
