// Package session drives one voice interaction at a time: wait for the wake
// word, listen, act on the transcript and answer.
package session

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"jarvis/internal/capture"
	"jarvis/internal/command"
	"jarvis/internal/wake"
)

type State string

const (
	Waiting     State = "waiting_for_wake"
	Listening   State = "listening"
	Dispatching State = "dispatching"
	Responding  State = "responding"
)

// Speaker is best effort; errors are logged and never stop the loop.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// ChatModel always answers, returning an error message as text on failure.
type ChatModel interface {
	Chat(ctx context.Context, text string) string
}

type Waker interface {
	WaitForWake(ctx context.Context) error
	Reset()
	Keyword() string
}

type Listener interface {
	Utterance(ctx context.Context) (string, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, text string) (command.Result, bool)
}

type Chime interface {
	Play(ctx context.Context) error
}

type Ducker interface {
	Duck(ctx context.Context) error
	Unduck(ctx context.Context) error
}

type Session struct {
	ID         string
	State      State
	Transcript string
	StartedAt  time.Time
}

type Transition struct {
	Session    string    `json:"session"`
	From       State     `json:"from"`
	To         State     `json:"to"`
	Transcript string    `json:"transcript,omitempty"`
	Rule       string    `json:"rule,omitempty"`
	Reply      string    `json:"reply,omitempty"`
	At         time.Time `json:"at"`
}

type Observer interface {
	Observe(Transition)
}

type ObserverFunc func(Transition)

func (f ObserverFunc) Observe(t Transition) { f(t) }

type Options struct {
	// Name is how the assistant introduces itself.
	Name     string
	UserName string
	Prompt   string
	Chime    Chime
	Ducker   Ducker
	Now      func() time.Time
}

type Machine struct {
	waker    Waker
	listener Listener
	dispatch Dispatcher
	speaker  Speaker
	chat     ChatModel
	opt      Options

	mu        sync.Mutex
	state     State
	current   *Session
	observers []Observer
}

func New(w Waker, l Listener, d Dispatcher, sp Speaker, chat ChatModel, opt Options) *Machine {
	if opt.Name == "" {
		opt.Name = "Jarvis"
	}
	if opt.Prompt == "" {
		opt.Prompt = "How can I help you?"
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Machine{
		waker:    w,
		listener: l,
		dispatch: d,
		speaker:  sp,
		chat:     chat,
		opt:      opt,
		state:    Waiting,
	}
}

func (m *Machine) AddObserver(o Observer) {
	m.mu.Lock()
	m.observers = append(m.observers, o)
	m.mu.Unlock()
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns a copy of the live session, if any.
func (m *Machine) Current() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Session{}, false
	}
	return *m.current, true
}

// Greet speaks the startup greeting.
func (m *Machine) Greet(ctx context.Context) {
	part := "evening"
	switch h := m.opt.Now().Hour(); {
	case h < 12:
		part = "morning"
	case h < 18:
		part = "afternoon"
	}

	if m.opt.UserName != "" {
		m.say(ctx, fmt.Sprintf("Good %s, %s!", part, m.opt.UserName))
	} else {
		m.say(ctx, fmt.Sprintf("Good %s!", part))
	}
	m.say(ctx, fmt.Sprintf("I am %s. How can I assist you today?", m.opt.Name))
}

// Run serves interactions until ctx is cancelled or the detector stops.
func (m *Machine) Run(ctx context.Context) error {
	for {
		err := m.RunOnce(ctx)
		switch {
		case err == nil:
		case errors.Is(err, wake.ErrStopped), errors.Is(err, context.Canceled):
			return nil
		default:
			return err
		}
	}
}

// RunOnce waits for one wake event and serves it. Only wake and context
// errors are returned; interaction failures are spoken instead.
func (m *Machine) RunOnce(ctx context.Context) error {
	m.waker.Reset()
	if err := m.waker.WaitForWake(ctx); err != nil {
		return err
	}

	s := &Session{ID: ulid.Make().String(), State: Waiting, StartedAt: m.opt.Now()}
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()

	// notice rides on the return to WAIT when nothing was dispatched
	var notice string
	defer func() { m.finish(s, notice) }()

	m.enter(s, Listening, "", "")
	if m.opt.Chime != nil {
		if err := m.opt.Chime.Play(ctx); err != nil {
			log.Warn("Chime failed", "err", err)
		}
	}
	m.say(ctx, m.opt.Prompt)

	text, err := m.listen(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		notice = captureNotice(err)
		log.Info("Nothing to dispatch", "session", s.ID, "err", err)
		m.say(ctx, notice)
		m.say(ctx, fmt.Sprintf("Please try again and say '%s' to wake me.", m.waker.Keyword()))
		return nil
	}

	s.Transcript = text
	m.enter(s, Dispatching, "", "")
	reply, rule := m.decide(ctx, text)

	m.enter(s, Responding, rule, reply)
	m.say(ctx, reply)
	return nil
}

func (m *Machine) listen(ctx context.Context) (string, error) {
	if m.opt.Ducker != nil {
		if err := m.opt.Ducker.Duck(ctx); err != nil {
			log.Warn("Failed to duck other streams", "err", err)
		}
		defer func() {
			uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if err := m.opt.Ducker.Unduck(uctx); err != nil {
				log.Warn("Failed to restore other streams", "err", err)
			}
		}()
	}
	return m.listener.Utterance(ctx)
}

var (
	exitIntent = regexp.MustCompile(`^(?:exit|quit|goodbye|good bye|bye)(?:,? jarvis| now)?$`)
	openers    = []string{"hi", "hello", "hey", "how"}
)

// decide picks the reply for a transcript: exit, rule, LLM or fallback.
func (m *Machine) decide(ctx context.Context, text string) (reply, rule string) {
	if exitIntent.MatchString(text) {
		return "Goodbye!", "exit"
	}

	if res, ok := m.dispatch.Dispatch(ctx, text); ok {
		return res.Reply, res.Rule
	}

	if first, _, _ := strings.Cut(text, " "); slices.Contains(openers, strings.Trim(first, ",.!?")) && m.chat != nil {
		answer := strings.TrimSpace(m.chat.Chat(ctx, text))
		if answer == "" {
			answer = "Sorry, I have no answer to that."
		}
		return answer, "chat"
	}

	return fmt.Sprintf("Sorry, I didn't understand that. Please say '%s' to wake me and try again.", m.waker.Keyword()), ""
}

func captureNotice(err error) string {
	switch {
	case errors.Is(err, capture.ErrTimeout):
		return "I didn't hear anything."
	case errors.Is(err, capture.ErrService):
		return "Speech service error."
	default:
		return "Sorry, I couldn't understand."
	}
}

func (m *Machine) say(ctx context.Context, text string) {
	if text == "" {
		return
	}
	log.Info("Speaking", "text", text)
	if err := m.speaker.Speak(ctx, text); err != nil {
		log.Error("Speech output failed", "err", err)
	}
}

func (m *Machine) enter(s *Session, to State, rule, reply string) {
	m.mu.Lock()
	from := m.state
	m.state = to
	s.State = to
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	t := Transition{Session: s.ID, From: from, To: to, Transcript: s.Transcript, Rule: rule, Reply: reply, At: m.opt.Now()}
	log.Debug("Session transition", "session", s.ID, "from", from, "to", to)
	for _, o := range observers {
		o.Observe(t)
	}
}

func (m *Machine) finish(s *Session, reply string) {
	m.enter(s, Waiting, "", reply)
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	log.Debug("Session finished", "session", s.ID, "took", m.opt.Now().Sub(s.StartedAt).Round(time.Millisecond))
}
