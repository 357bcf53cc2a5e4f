package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Hamiltonwise/signalsai-sub006/internal/editsession"
)

// StaticModel is reported in debug info by StaticEditor.
const StaticModel = "static"

// StaticEditor answers without a model. Instructions are understood as:
//
//	reject <reason>   the edit is rejected
//	text: <value>     the element's text is replaced
//	class: <value>    the class is added to the element
//
// Anything else tags the element with a data-edit attribute.
type StaticEditor struct{}

func NewStaticEditor() *StaticEditor { return &StaticEditor{} }

func (StaticEditor) EditElement(ctx context.Context, _ string, req editsession.EditRequest) (*editsession.EditResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	instr := strings.TrimSpace(req.Instruction)
	dbg := editsession.DebugInfo{
		Model:        StaticModel,
		Prompt:       editPrompt(req),
		InputTokens:  len(strings.Fields(req.CurrentHTML)) + len(strings.Fields(instr)),
		OutputTokens: 0,
	}

	if reason, ok := cutFold(instr, "reject"); ok {
		dbg.Latency = time.Since(start)
		if reason == "" {
			reason = "instruction was rejected"
		}
		return &editsession.EditResult{Rejected: true, Message: reason, Debug: dbg}, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(req.CurrentHTML))
	if err != nil {
		return nil, fmt.Errorf("parse element: %w", err)
	}
	el := doc.Find("body").Children().First()
	if el.Length() == 0 {
		return nil, fmt.Errorf("no element in %q", req.CurrentHTML)
	}

	msg := "Applied the edit."
	if v, ok := cutFold(instr, "text:"); ok {
		el.SetText(v)
		msg = "Replaced the text."
	} else if v, ok := cutFold(instr, "class:"); ok {
		el.AddClass(v)
		msg = fmt.Sprintf("Added class %s.", v)
	} else {
		el.SetAttr("data-edit", instr)
	}

	out, err := goquery.OuterHtml(el)
	if err != nil {
		return nil, fmt.Errorf("render element: %w", err)
	}
	dbg.OutputTokens = len(strings.Fields(out))
	dbg.Latency = time.Since(start)
	return &editsession.EditResult{EditedHTML: out, Message: msg, Debug: dbg}, nil
}

// WriteSkill returns a markdown outline of prompt.
func (StaticEditor) WriteSkill(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	prompt = strings.TrimSpace(prompt)
	return fmt.Sprintf("# Skill\n\n%s\n", prompt), nil
}

// cutFold is strings.CutPrefix ignoring case, trimming the remainder.
func cutFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(s[len(prefix):]), true
}
