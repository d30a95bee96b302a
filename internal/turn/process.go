package turn

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/voxdesk/internal/intent"
	"github.com/MrWong99/voxdesk/internal/observe"
	"github.com/MrWong99/voxdesk/internal/tools/calendar"
	"github.com/MrWong99/voxdesk/internal/turnlog"
	"github.com/MrWong99/voxdesk/pkg/audio"
	"github.com/MrWong99/voxdesk/pkg/provider/llm"
	"github.com/MrWong99/voxdesk/pkg/types"
)

// Loop listens and answers until ctx is cancelled. A turn that has started
// runs to completion on a context detached from ctx, so cancellation only
// interrupts the wait for speech.
func (o *Orchestrator) Loop(ctx context.Context, l Listener, p audio.Player) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		start := time.Now()
		utt := l.Record(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if utt.Empty() {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(o.idleBackoff):
			}
			continue
		}
		turnCtx := context.WithoutCancel(ctx)
		o.metrics.ObserveStage(turnCtx, observe.StageCapture, time.Since(start))

		res, err := o.ProcessAudio(turnCtx, utt.PCM)
		if err != nil {
			observe.Logger(turnCtx).Error("turn failed", "err", err, "turn_id", res.TurnID)
			continue
		}
		if res.Skipped {
			continue
		}
		if err := p.Play(turnCtx, res.Audio); err != nil {
			observe.Logger(turnCtx).Error("playback failed", "err", err, "turn_id", res.TurnID)
		}
	}
}

// ProcessAudio transcribes pcm (16-bit mono at the configured STT sample
// rate) and runs a text turn on the result. An empty or failed
// transcription skips the turn.
func (o *Orchestrator) ProcessAudio(ctx context.Context, pcm []byte) (Result, error) {
	if o.stt == nil {
		return Result{}, ErrNoTranscriber
	}

	start := time.Now()
	tr, err := o.stt.Transcribe(ctx, pcm, o.sttCfg)
	o.metrics.ObserveStage(ctx, observe.StageSTT, time.Since(start))
	if err != nil {
		o.metrics.RecordProviderError(ctx, "stt", "transcribe")
		observe.Logger(ctx).Warn("transcription failed", "err", err)
		o.metrics.RecordTurn(ctx, "skipped")
		return Result{Skipped: true}, nil
	}
	text := strings.TrimSpace(tr.Text)
	if text == "" {
		observe.Logger(ctx).Info("empty transcript, skipping turn")
		o.metrics.RecordTurn(ctx, "skipped")
		return Result{Skipped: true}, nil
	}
	return o.ProcessText(ctx, text)
}

// ProcessText runs one turn for text and returns the synthesised reply. The
// only error is a synthesis failure wrapping [ErrSynthesis]; the returned
// Result then carries the reply text without audio.
func (o *Orchestrator) ProcessText(ctx context.Context, text string) (Result, error) {
	start := time.Now()
	res := Result{TurnID: observe.TurnID(ctx), UserText: text}
	if res.TurnID == "" {
		res.TurnID = turnlog.NewID()
		ctx = observe.WithTurnID(ctx, res.TurnID)
	}
	ctx, span := observe.StartSpan(ctx, "turn.process")
	defer span.End()
	log := observe.Logger(ctx)

	tmpl, refusals := o.promptSettings()
	o.history.SetSystem(RenderSystemPrompt(tmpl, o.now()))

	in, cc := o.router.Route(ctx, text, o.cc)
	o.cc = cc
	res.Intent = in.Kind
	o.metrics.RecordIntent(ctx, string(in.Kind))
	log.Info("routed", "intent", string(in.Kind), "city", in.City, "action", string(in.Calendar.Action))

	switch {
	case in.Kind == intent.KindWeather && o.weather != nil:
		res.ToolOutput = o.weather.Forecast(ctx, in.City, in.DayHint)
		res.Reply, res.Refused = o.speakable(ctx, in.Kind, res.ToolOutput, refusals)

	case in.Kind == intent.KindCalendar && o.calendar != nil:
		res.ToolOutput = o.calendar.Execute(ctx, in.Calendar)
		if id, ok := intent.ScanEventID(res.ToolOutput); ok {
			o.cc = o.cc.WithEventID(id)
		}
		if in.Calendar.Action == calendar.ActionList && strings.Contains(strings.ToLower(res.ToolOutput), "no appointments") {
			res.Reply = calendar.NoAppointments
		} else {
			res.Reply, res.Refused = o.speakable(ctx, in.Kind, res.ToolOutput, refusals)
		}

	default:
		res.Reply = o.chat(ctx, text)
	}
	if res.Refused {
		o.metrics.RecordRefusal(ctx)
	}

	ttsStart := time.Now()
	wav, err := o.tts.Synthesize(ctx, res.Reply, o.voice)
	o.metrics.ObserveStage(ctx, observe.StageTTS, time.Since(ttsStart))

	outcome := "ok"
	if err != nil {
		outcome = "tts_error"
		o.metrics.RecordProviderError(ctx, "tts", "synthesize")
		err = fmt.Errorf("%w: %w", ErrSynthesis, err)
	} else {
		res.Audio = wav
		o.history.AppendTurn(text, res.Reply)
	}

	elapsed := time.Since(start)
	o.metrics.ObserveStage(ctx, observe.StageTurn, elapsed)
	o.metrics.RecordTurn(ctx, outcome)
	o.record(ctx, res, start, elapsed)
	return res, err
}

// speakable rephrases tool output for speech. A refusal, a failed call or an
// empty answer falls back to reading the raw data.
func (o *Orchestrator) speakable(ctx context.Context, kind intent.Kind, toolOutput string, refusals []string) (reply string, refused bool) {
	start := time.Now()
	reply, err := llm.Prompt(ctx, o.llm, RephrasePrompt(kind, toolOutput))
	o.metrics.ObserveStage(ctx, observe.StageLLM, time.Since(start))

	switch {
	case err != nil:
		o.metrics.RecordProviderError(ctx, "llm", "rephrase")
		observe.Logger(ctx).Warn("rephrase failed, reading raw output", "err", err)
		return RawDataReply(toolOutput), false
	case reply == "":
		return RawDataReply(toolOutput), false
	case IsRefusal(reply, refusals):
		observe.Logger(ctx).Warn("model refused to read tool output", "reply", reply)
		return RawDataReply(toolOutput), true
	}
	return reply, false
}

// chat answers over the full history. When that fails a single-shot prompt
// is tried before giving up.
func (o *Orchestrator) chat(ctx context.Context, text string) string {
	msgs := append(o.history.Messages(), types.UserMessage(text))

	start := time.Now()
	resp, err := o.llm.Complete(ctx, llm.CompletionRequest{Messages: msgs})
	o.metrics.ObserveStage(ctx, observe.StageLLM, time.Since(start))
	if err == nil {
		if reply := strings.TrimSpace(resp.Content); reply != "" {
			return reply
		}
	}
	o.metrics.RecordProviderError(ctx, "llm", "chat")
	observe.Logger(ctx).Warn("chat completion failed, trying single prompt", "err", err)

	reply, err := llm.Prompt(ctx, o.llm, ChatFallbackPrompt(text))
	if err != nil || reply == "" {
		observe.Logger(ctx).Error("chat fallback failed", "err", err)
		return SystemErrorReply
	}
	return reply
}

func (o *Orchestrator) record(ctx context.Context, res Result, start time.Time, elapsed time.Duration) {
	if o.journal == nil {
		return
	}
	err := o.journal.Append(ctx, turnlog.Record{
		ID:         res.TurnID,
		StartedAt:  start,
		UserText:   res.UserText,
		Intent:     string(res.Intent),
		ToolOutput: res.ToolOutput,
		Reply:      res.Reply,
		Refused:    res.Refused,
		Duration:   elapsed,
	})
	if err != nil {
		observe.Logger(ctx).Warn("journal append failed", "err", err)
	}
}
