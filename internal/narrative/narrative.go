// Package narrative turns a scored night into a short plain-language summary.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/lox/aurorawatch/internal/outlook"
)

const (
	SourceOpenAI   = "openai"
	SourceTemplate = "template"
)

const systemPrompt = `You write two-sentence aurora viewing summaries for the general public.
Use only the facts given. Mention the best time, the cloud outlook and how active the aurora is.
Do not use markdown.`

type Summary struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// Narrator summarises outlooks with a chat model when an API key is
// configured and with a fixed template otherwise.
type Narrator struct {
	client *openai.Client
	model  openai.ChatModel
	clock  clockwork.Clock
	log    *slog.Logger
}

// New returns a narrator. An empty apiKey disables the chat model.
func New(apiKey string, clock clockwork.Clock, log *slog.Logger, opts ...option.RequestOption) *Narrator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	n := &Narrator{model: openai.ChatModelGPT4oMini, clock: clock, log: log.With("component", "narrative")}
	if apiKey != "" {
		client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
		n.client = &client
	}
	return n
}

// Summarize never fails because of the chat model; it falls back to the
// template and reports which one produced the text.
func (n *Narrator) Summarize(ctx context.Context, o *outlook.Outlook) (Summary, error) {
	if o == nil {
		return Summary{}, errors.New("narrative: nil outlook")
	}
	if n.client != nil {
		text, err := n.complete(ctx, Facts(o, n.clock.Now()))
		if err == nil {
			return Summary{Text: text, Source: SourceOpenAI}, nil
		}
		n.log.Warn("chat summary failed, using template", "error", err)
	}
	return Summary{Text: Template(o, n.clock.Now()), Source: SourceTemplate}, nil
}

func (n *Narrator) complete(ctx context.Context, facts string) (string, error) {
	resp, err := n.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: n.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(facts),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("empty completion")
	}
	return text, nil
}

// Facts renders the outlook as a list of plain statements for the prompt.
func Facts(o *outlook.Outlook, now time.Time) string {
	loc := location(o)
	var b strings.Builder
	fmt.Fprintf(&b, "Location: %.3f, %.3f (%s)\n", o.Latitude, o.Longitude, o.Timezone)
	fmt.Fprintf(&b, "Dark window: %s to %s local\n", o.Window.Start.In(loc).Format("15:04"), o.Window.End.In(loc).Format("15:04"))
	if o.Best != nil {
		fmt.Fprintf(&b, "Best hour: %s local, score %s/10\n", o.Best.Time.In(loc).Format("15:04"), humanize.FtoaWithDigits(o.Best.Sightability.Score, 1))
		for _, e := range o.Best.Sightability.Breakdown {
			fmt.Fprintf(&b, "- %s\n", e.Label)
		}
	}
	for _, st := range o.Stats {
		if st.AvgCloudsPct != nil {
			fmt.Fprintf(&b, "Clouds %s evening: about %d%%\n", st.Label, int(math.Round(*st.AvgCloudsPct)))
		} else {
			fmt.Fprintf(&b, "Clouds %s evening: unknown\n", st.Label)
		}
	}
	b.WriteString(geomagneticFact(o, now))
	b.WriteString("\n")
	return b.String()
}

// Template is the summary used without a chat model.
func Template(o *outlook.Outlook, now time.Time) string {
	loc := location(o)
	var parts []string

	if o.Best != nil && o.Best.Sightability.Score > 0 {
		parts = append(parts, fmt.Sprintf("Best chance tonight is around %s with a sightability score of %s/10.",
			o.Best.Time.In(loc).Format("15:04"), humanize.FtoaWithDigits(o.Best.Sightability.Score, 1)))
	} else {
		parts = append(parts, "Tonight looks unfavourable for aurora watching.")
	}

	var clouds []string
	for _, st := range o.Stats {
		if st.AvgCloudsPct != nil {
			clouds = append(clouds, fmt.Sprintf("%d%% %s", int(math.Round(*st.AvgCloudsPct)), st.Label))
		}
	}
	if len(clouds) > 0 {
		parts = append(parts, "Cloud cover is about "+strings.Join(clouds, " and ")+".")
	} else {
		parts = append(parts, "No cloud forecast is available.")
	}

	parts = append(parts, geomagneticFact(o, now))
	return strings.Join(parts, " ")
}

func geomagneticFact(o *outlook.Outlook, now time.Time) string {
	g := o.Geomagnetic
	if g == nil {
		return "No geomagnetic data is available right now."
	}
	local := g.GlobalScore10
	if o.Adjustment != nil {
		local = o.Adjustment.AdjustedScore10
	}
	return fmt.Sprintf("Geomagnetic activity is Kp %s (%s/10 here), updated %s.",
		humanize.FtoaWithDigits(g.KpProxy, 1),
		humanize.FtoaWithDigits(local, 1),
		humanize.RelTime(g.TimeTag, now, "ago", "from now"))
}

func location(o *outlook.Outlook) *time.Location {
	if loc, err := time.LoadLocation(o.Timezone); err == nil && o.Timezone != "" {
		return loc
	}
	return time.UTC
}
