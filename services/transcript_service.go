package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/anjiri1684/medichat/models"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
)

const transcriptTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
body { font-family: sans-serif; font-size: 12px; }
.doctor { color: #0b5394; }
.patient { color: #38761d; }
.meta { color: #777; font-size: 10px; }
</style>
</head>
<body>
<h1>Consultation chat</h1>
<p>{{.DoctorName}} &amp; {{.PatientName}} &middot; exported {{.ExportedAt}}</p>
{{range .Lines}}
<p class="{{.Kind}}"><b>{{.Author}}</b> <span class="meta">{{.At}}</span><br>
{{if .Text}}{{.Text}}<br>{{end}}
{{if .ImageURL}}<span class="meta">image: {{.ImageURL}}</span><br>{{end}}
{{if .AudioURL}}<span class="meta">audio: {{.AudioURL}}</span>{{end}}
</p>
{{else}}
<p>No messages.</p>
{{end}}
</body>
</html>`

var transcriptTmpl = template.Must(template.New("transcript").Parse(transcriptTemplate))

type transcriptLine struct {
	Kind     models.ParticipantKind
	Author   string
	At       string
	Text     string
	ImageURL string
	AudioURL string
}

// TranscriptService renders a read-only PDF copy of a conversation. It never
// touches read state.
type TranscriptService struct {
	store    *MessageStore
	identity IdentityDirectory
	print    func(ctx context.Context, html string) ([]byte, error)
	now      func() time.Time
}

func NewTranscriptService(store *MessageStore, identity IdentityDirectory) *TranscriptService {
	return &TranscriptService{store: store, identity: identity, print: printPDF, now: time.Now}
}

func (t *TranscriptService) Render(ctx context.Context, caller models.Participant, doctorID, patientID uuid.UUID) ([]byte, error) {
	if _, _, err := sides(caller, doctorID, patientID); err != nil {
		return nil, err
	}
	messages, err := t.store.FetchRange(ctx, doctorID, patientID)
	if err != nil {
		return nil, err
	}
	profiles, err := t.identity.Profiles(ctx, []uuid.UUID{doctorID, patientID})
	if err != nil {
		return nil, fmt.Errorf("transcript: resolve profiles: %w", err)
	}

	html, err := t.renderHTML(doctorID, patientID, profiles, messages)
	if err != nil {
		return nil, err
	}
	return t.print(ctx, html)
}

func (t *TranscriptService) renderHTML(doctorID, patientID uuid.UUID, profiles []models.Profile, messages []models.Message) (string, error) {
	names := map[uuid.UUID]string{doctorID: "Doctor", patientID: "Patient"}
	for _, p := range profiles {
		if p.Name != "" {
			names[p.ID] = p.Name
		}
	}

	lines := make([]transcriptLine, 0, len(messages))
	for _, m := range messages {
		line := transcriptLine{
			Kind:   m.SenderKind,
			Author: names[m.SenderID],
			At:     m.CreatedAt.UTC().Format("2006-01-02 15:04"),
			Text:   m.Text,
		}
		if m.ImageURL != nil {
			line.ImageURL = *m.ImageURL
		}
		if m.AudioURL != nil {
			line.AudioURL = *m.AudioURL
		}
		lines = append(lines, line)
	}

	data := struct {
		DoctorName  string
		PatientName string
		ExportedAt  string
		Lines       []transcriptLine
	}{
		DoctorName:  names[doctorID],
		PatientName: names[patientID],
		ExportedAt:  t.now().UTC().Format("January 2, 2006 15:04 MST"),
		Lines:       lines,
	}

	var rendered bytes.Buffer
	if err := transcriptTmpl.Execute(&rendered, data); err != nil {
		return "", fmt.Errorf("transcript: render: %w", err)
	}
	return rendered.String(), nil
}

func printPDF(ctx context.Context, htmlContent string) ([]byte, error) {
	ctx, cancel := chromedp.NewContext(ctx)
	defer cancel()

	var pdfBuffer []byte
	err := chromedp.Run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, htmlContent).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			pdf, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if err != nil {
				return err
			}
			pdfBuffer = pdf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("transcript: print pdf: %w", err)
	}
	return pdfBuffer, nil
}
