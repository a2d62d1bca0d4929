// Package tui provides the Bubble Tea practice client.
package tui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/hashicorp/go-hclog"

	"github.com/verte-zerg/typestream/internal/client"
	"github.com/verte-zerg/typestream/internal/model"
	"github.com/verte-zerg/typestream/internal/stream"
)

const eventBuffer = 64

// Config holds practice settings.
type Config struct {
	Words       int
	MaxAttempts int
}

// API is the part of the HTTP client the practice UI needs.
type API interface {
	CreateSession(ctx context.Context, wordCount int) (model.CreateSessionResponse, error)
	Results(ctx context.Context, limit int) (model.ResultsResponse, error)
	URL() string
}

type sessionReadyMsg struct {
	session model.CreateSessionResponse
}

type sessionFailedMsg struct {
	err error
}

type resultsMsg struct {
	summary model.ResultSummary
}

type connStateMsg struct {
	sessionID string
	state     client.ConnState
}

type metricsMsg struct {
	sessionID string
	update    stream.MetricsUpdate
}

type completeMsg struct {
	sessionID string
	complete  stream.SessionComplete
}

type streamErrorMsg struct {
	sessionID string
	data      stream.ErrorData
}

type streamEndedMsg struct {
	sessionID string
	err       error
}

// Model implements the Bubble Tea practice UI.
type Model struct {
	cfg    Config
	api    API
	logger hclog.Logger
	events chan tea.Msg

	// dial opens the stream for a session; replaced in tests.
	dial func(sessionID string) (*client.Stream, error)

	spinner spinner.Model
	width   int
	height  int

	sessionID string
	target    []rune
	input     []rune
	started   bool
	stream    *client.Stream
	connState client.ConnState

	live      *model.Metrics
	flagged   map[int]bool
	final     *stream.SessionComplete
	notice    string
	fatal     error
	summary   model.ResultSummary
	hasResult bool
}

var (
	correctStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	incorrectStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	pendingStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	currentWordStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	cursorStyle      = pendingStyle.Underline(true)
	footerStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	scoreStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	noticeStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
)

// NewModel constructs the practice UI.
func NewModel(cfg Config, api API, logger hclog.Logger) *Model {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	m := &Model{
		cfg:     cfg,
		api:     api,
		logger:  logger,
		events:  make(chan tea.Msg, eventBuffer),
		spinner: sp,
	}
	m.dial = m.openStream
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.createSessionCmd(), m.loadResultsCmd(), m.waitForEvent())
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		return m.handleKey(msg)
	case sessionReadyMsg:
		m.startSession(msg.session)
		return m, nil
	case sessionFailedMsg:
		m.fatal = msg.err
		return m, nil
	case resultsMsg:
		m.summary = msg.summary
		m.hasResult = msg.summary.Count > 0
		return m, nil
	case connStateMsg:
		if msg.sessionID == m.sessionID {
			m.onConnState(msg.state)
		}
		return m, m.waitForEvent()
	case metricsMsg:
		if msg.sessionID == m.sessionID {
			metrics := msg.update.Metrics
			m.live = &metrics
			m.flagged = flaggedPositions(msg.update.Analysis)
		}
		return m, m.waitForEvent()
	case completeMsg:
		if msg.sessionID != m.sessionID || m.final != nil {
			return m, m.waitForEvent()
		}
		complete := msg.complete
		m.final = &complete
		m.flagged = flaggedPositions(complete.Analysis)
		return m, tea.Batch(m.loadResultsCmd(), m.waitForEvent())
	case streamErrorMsg:
		if msg.sessionID == m.sessionID {
			m.notice = msg.data.Message
		}
		return m, m.waitForEvent()
	case streamEndedMsg:
		if msg.sessionID == m.sessionID {
			m.stream = nil
			m.connState = client.StateDisconnected
			if msg.err != nil {
				m.notice = streamEndedNotice(msg.err)
			}
		}
		return m, m.waitForEvent()
	default:
		return m, nil
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.fatal != nil {
		return noticeStyle.Render(fmt.Sprintf("failed to start session: %v", m.fatal)) + "\nPress Ctrl+C to quit."
	}
	if len(m.target) == 0 {
		return m.spinner.View() + " Creating session..."
	}

	cursor := -1
	if m.final == nil && len(m.input) < len(m.target) {
		cursor = len(m.input)
	}
	view := textView{target: m.target, input: m.input, cursor: cursor, flagged: m.flagged}
	runes := view.styledRunes()
	if m.width == 0 || m.height == 0 {
		return renderRunes(runes)
	}

	contentWidth := int(float64(m.width) * 0.70)
	if contentWidth < 1 {
		contentWidth = 1
	}
	lines, atLine := wrapLines(runes, contentWidth, len(m.input))
	lines = visibleLines(lines, atLine, m.height-4)
	blocks := []string{strings.Join(lines, "\n")}
	if m.final != nil {
		blocks = append(blocks, "", m.renderScore())
	}
	if m.notice != "" {
		blocks = append(blocks, "", noticeStyle.Render(m.notice))
	}
	content := lipgloss.NewStyle().Width(contentWidth).Render(strings.Join(blocks, "\n"))

	footer := m.renderFooter()
	if footer == "" || m.height < 3 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
	}
	body := lipgloss.Place(m.width, m.height-1, lipgloss.Center, lipgloss.Center, content)
	footerLine := lipgloss.Place(m.width, 1, lipgloss.Center, lipgloss.Center, footer)
	return body + "\n" + footerLine
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.closeStream()
		return m, tea.Quit
	case tea.KeyEnter:
		if !m.canRestart() {
			return m, nil
		}
		m.closeStream()
		m.reset()
		return m, m.createSessionCmd()
	case tea.KeyBackspace, tea.KeyDelete:
		if m.final != nil || len(m.input) == 0 {
			return m, nil
		}
		m.input = m.input[:len(m.input)-1]
		m.sendInput()
		return m, nil
	case tea.KeySpace:
		m.handleRunes([]rune{' '})
		return m, nil
	case tea.KeyRunes:
		m.handleRunes(msg.Runes)
		return m, nil
	default:
		return m, nil
	}
}

// canRestart reports whether Enter may replace the current session: after
// completion, after a failure, or once the stream has ended.
// Err reports why the last session could not be created, if it failed.
func (m *Model) Err() error {
	return m.fatal
}

func (m *Model) canRestart() bool {
	return m.final != nil || m.fatal != nil || (len(m.target) > 0 && m.stream == nil)
}

func (m *Model) handleRunes(runes []rune) {
	if m.final != nil || len(m.target) == 0 {
		return
	}
	changed := false
	for _, r := range runes {
		if len(m.input) >= len(m.target) {
			break
		}
		m.input = append(m.input, r)
		changed = true
	}
	if !changed {
		return
	}
	if !m.started {
		m.started = true
		m.send(stream.TypeStartSession, nil)
	}
	m.sendInput()
}

func (m *Model) sendInput() {
	input := string(m.input)
	m.send(stream.TypeInputUpdate, stream.InputData{Input: &input})
}

// send drops the event while offline; the full input is resent on reconnect.
func (m *Model) send(msgType string, data any) {
	if m.stream == nil {
		return
	}
	if err := m.stream.Send(msgType, data); err != nil && !errors.Is(err, client.ErrNotConnected) {
		m.logger.Debug("send failed", "type", msgType, "error", err)
	}
}

func (m *Model) onConnState(state client.ConnState) {
	prev := m.connState
	m.connState = state
	if state != client.StateOpen || prev == client.StateOpen {
		return
	}
	m.notice = ""
	if m.started && m.final == nil {
		m.send(stream.TypeStartSession, nil)
		m.sendInput()
	}
}

func (m *Model) startSession(sess model.CreateSessionResponse) {
	m.reset()
	m.sessionID = sess.SessionID
	m.target = []rune(sess.Text)
	st, err := m.dial(sess.SessionID)
	if err != nil {
		m.notice = fmt.Sprintf("failed to connect: %v", err)
		return
	}
	m.stream = st
}

func (m *Model) reset() {
	m.sessionID = ""
	m.target = nil
	m.input = nil
	m.started = false
	m.live = nil
	m.flagged = nil
	m.final = nil
	m.notice = ""
	m.fatal = nil
	m.connState = client.StateDisconnected
}

func (m *Model) closeStream() {
	if m.stream == nil {
		return
	}
	if err := m.stream.Close(); err != nil {
		m.logger.Debug("stream close failed", "error", err)
	}
	m.stream = nil
}

// openStream connects a client stream whose events are forwarded to the
// Bubble Tea loop tagged with the session id.
func (m *Model) openStream(sessionID string) (*client.Stream, error) {
	events := m.events
	opts := []client.StreamOption{
		client.WithLogger(m.logger.Named("stream")),
		client.WithStateHook(func(state client.ConnState) {
			events <- connStateMsg{sessionID: sessionID, state: state}
		}),
	}
	if m.cfg.MaxAttempts > 0 {
		opts = append(opts, client.WithMaxAttempts(m.cfg.MaxAttempts))
	}
	st, err := client.NewStream(m.api.URL(), sessionID, opts...)
	if err != nil {
		return nil, err
	}
	st.On(stream.TypeMetricsUpdate, func(data json.RawMessage) {
		var update stream.MetricsUpdate
		if err := json.Unmarshal(data, &update); err == nil {
			events <- metricsMsg{sessionID: sessionID, update: update}
		}
	})
	st.On(stream.TypeSessionComplete, func(data json.RawMessage) {
		var complete stream.SessionComplete
		if err := json.Unmarshal(data, &complete); err == nil {
			events <- completeMsg{sessionID: sessionID, complete: complete}
		}
	})
	st.On(stream.TypeError, func(data json.RawMessage) {
		var errData stream.ErrorData
		if err := json.Unmarshal(data, &errData); err == nil {
			events <- streamErrorMsg{sessionID: sessionID, data: errData}
		}
	})
	go func() {
		err := st.Run(context.Background())
		events <- streamEndedMsg{sessionID: sessionID, err: err}
	}()
	return st, nil
}

func (m *Model) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		return <-events
	}
}

func (m *Model) createSessionCmd() tea.Cmd {
	api := m.api
	words := m.cfg.Words
	return func() tea.Msg {
		sess, err := api.CreateSession(context.Background(), words)
		if err != nil {
			return sessionFailedMsg{err: err}
		}
		return sessionReadyMsg{session: sess}
	}
}

func (m *Model) loadResultsCmd() tea.Cmd {
	api := m.api
	logger := m.logger
	return func() tea.Msg {
		res, err := api.Results(context.Background(), 1)
		if err != nil {
			logger.Debug("failed to load results", "error", err)
			return nil
		}
		return resultsMsg{summary: res.Summary}
	}
}

func (m *Model) renderScore() string {
	f := m.final.Metrics
	a := m.final.Analysis
	score := fmt.Sprintf("%.1f WPM · net %.1f · %.1f%% accuracy · %d errors",
		f.WPM, f.NetWPM, f.Accuracy, len(a.Errors))
	return scoreStyle.Render(score) + "\n" + footerStyle.Render("Enter: new text  Ctrl+C: quit")
}

func (m *Model) renderFooter() string {
	if len(m.target) == 0 {
		return ""
	}
	progress := int(float64(len(m.input)) / float64(len(m.target)) * 100)
	segments := []string{fmt.Sprintf("Progress %d%%", progress)}
	if m.live != nil && m.final == nil {
		segments = append(segments, fmt.Sprintf("Now %.1f WPM · %.1f%%", m.live.WPM, m.live.Accuracy))
	}
	if m.hasResult {
		segments = append(segments, fmt.Sprintf("Last %.1f WPM", m.summary.LastWPM))
		segments = append(segments, fmt.Sprintf("All-time %.1f WPM · %.1f%%", m.summary.AvgWPM, m.summary.AvgAccuracy))
	}
	switch m.connState {
	case client.StateConnecting:
		segments = append(segments, m.spinner.View()+"connecting")
	case client.StateDisconnected:
		if m.final == nil {
			segments = append(segments, "offline")
		}
	}
	return footerStyle.Render(strings.Join(segments, "  "))
}

func flaggedPositions(a model.DifferenceAnalysis) map[int]bool {
	if len(a.Errors) == 0 {
		return nil
	}
	flagged := make(map[int]bool, len(a.Errors))
	for _, e := range a.Errors {
		flagged[e.Position] = true
	}
	return flagged
}

func streamEndedNotice(err error) string {
	var refused *client.RefusedError
	switch {
	case errors.As(err, &refused):
		return fmt.Sprintf("server refused the connection: %s (Enter for a new session)", refused.Message)
	case errors.Is(err, client.ErrReconnectExhausted):
		return "connection lost, giving up (Enter for a new session)"
	default:
		return err.Error()
	}
}
