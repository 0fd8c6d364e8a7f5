// ragcli is a small terminal client for the query endpoint: type a question,
// get the answer with its cited transcript spans.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"mediarag/core"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	answerStyle = lipgloss.NewStyle().PaddingLeft(2)
	sourceStyle = lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type queryRequest struct {
	Question string `json:"question"`
}

type queryResponse struct {
	Answer  string        `json:"answer"`
	Sources []core.Source `json:"sources"`
}

type resultMsg struct {
	resp *queryResponse
	err  error
}

type model struct {
	serverURL string
	input     textinput.Model
	spin      spinner.Model
	waiting   bool
	resp      *queryResponse
	err       error
}

func newModel(serverURL string) model {
	ti := textinput.New()
	ti.Placeholder = "Ask about your media..."
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 72

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return model{serverURL: serverURL, input: ti, spin: sp}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			question := m.input.Value()
			if question == "" || m.waiting {
				return m, nil
			}
			m.waiting = true
			m.resp = nil
			m.err = nil
			return m, tea.Batch(m.spin.Tick, ask(m.serverURL, question))
		}
	case resultMsg:
		m.waiting = false
		m.resp = msg.resp
		m.err = msg.err
		m.input.SetValue("")
		return m, nil
	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) View() string {
	s := titleStyle.Render("mediarag") + "\n\n" + m.input.View() + "\n\n"
	switch {
	case m.waiting:
		s += m.spin.View() + " thinking...\n"
	case m.err != nil:
		s += errorStyle.Render("error: "+m.err.Error()) + "\n"
	case m.resp != nil:
		s += answerStyle.Render(m.resp.Answer) + "\n"
		for _, src := range m.resp.Sources {
			s += sourceStyle.Render(fmt.Sprintf("%s [%.0fs - %.0fs] %s",
				src.MediaID[:8], src.StartSeconds, src.EndSeconds, src.Text)) + "\n"
		}
	}
	s += "\n(enter to ask, esc to quit)\n"
	return s
}

func ask(serverURL, question string) tea.Cmd {
	return func() tea.Msg {
		body, err := json.Marshal(queryRequest{Question: question})
		if err != nil {
			return resultMsg{err: err}
		}
		client := &http.Client{Timeout: 120 * time.Second}
		resp, err := client.Post(serverURL+"/query", "application/json", bytes.NewReader(body))
		if err != nil {
			return resultMsg{err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			var apiErr struct {
				Error string `json:"error"`
			}
			_ = json.NewDecoder(resp.Body).Decode(&apiErr)
			return resultMsg{err: fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)}
		}
		var qr queryResponse
		if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
			return resultMsg{err: err}
		}
		return resultMsg{resp: &qr}
	}
}

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "api base URL")
	flag.Parse()

	if _, err := tea.NewProgram(newModel(*serverURL)).Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
