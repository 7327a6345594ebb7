package session

import (
	"errors"
	"log"
	"time"

	"yuzu/interview/internal/analysis"
	"yuzu/interview/internal/silence"
	"yuzu/interview/internal/stt"
	"yuzu/interview/internal/types"
	"yuzu/interview/internal/voice"
)

// pumpVoice forwards AI audio straight to the sink and posts everything
// else to the loop.
func (s *Session) pumpVoice() {
	defer s.pumps.Done()
	for ev := range s.voice.Events() {
		switch ev.Kind {
		case voice.EventAudio:
			s.floor.OnAIAudio(time.Now())
			s.emitAudio(ev.Audio)
		case voice.EventTurnComplete, voice.EventInterrupted:
			s.floor.OnAITurnEnded(time.Now(), string(ev.Kind))
			kind := string(ev.Kind)
			s.post(func() { s.record("ai_turn_end", map[string]any{"reason": kind}) })
		case voice.EventInputTranscript:
			text := ev.Text
			s.post(func() { s.onTranscript(text, "voice") })
			s.detector.OnPartialTranscript()
		case voice.EventText:
			text := ev.Text
			s.post(func() { s.record("ai_text", map[string]any{"text": text}) })
		case voice.EventReconnected:
			s.post(func() { s.record("connection", map[string]any{"service": "voice", "event": "reconnected"}) })
		case voice.EventError:
			err := ev.Err
			s.post(func() { s.onVoiceError(err) })
		}
	}
}

func (s *Session) pumpSTT() {
	defer s.pumps.Done()
	for ev := range s.stt.Events() {
		switch ev.Kind {
		case stt.EventTranscript:
			tr := ev.Transcript
			if !tr.IsFinal {
				s.detector.OnPartialTranscript()
				continue
			}
			s.detector.OnFinalTranscript()
			s.post(func() { s.onSTTFinal(tr) })
		case stt.EventSpeechStarted:
			s.detector.OnPartialTranscript()
		case stt.EventError:
			err := ev.Err
			s.post(func() {
				log.Printf("[session] id=%s stt error: %v", s.id, err)
				s.record("connection", map[string]any{"service": s.stt.ServiceName(), "error": err.Error()})
			})
		}
	}
}

// onVoiceError never ends the session. Once reconnects are exhausted the
// interview runs without the voice model until it times out or is ended.
func (s *Session) onVoiceError(err error) {
	log.Printf("[session] id=%s voice error: %v", s.id, err)
	payload := map[string]any{"service": "voice", "error": err.Error()}
	if errors.Is(err, voice.ErrReconnectExhausted) {
		payload["event"] = "unavailable"
	}
	s.record("connection", payload)
}

// onSTTFinal always audits the transcriber's finals; they feed the answer
// only when the voice model is not transcribing.
func (s *Session) onSTTFinal(tr types.TranscriptEvent) {
	s.record("stt_transcript", map[string]any{"text": tr.Text, "confidence": tr.Confidence, "source": tr.Source})
	if s.voice.Transcribing() {
		return
	}
	s.onTranscript(tr.Text, tr.Source)
}

func (s *Session) onTranscript(text, source string) {
	if s.machine.Phase() != types.PhaseActive {
		return
	}
	if err := s.machine.AppendTranscript(text); err != nil {
		log.Printf("[session] id=%s append transcript: %v", s.id, err)
		return
	}
	metricTranscripts.WithLabelValues(source).Inc()
	s.record("transcript", map[string]any{"text": text, "source": source, "question_index": s.machine.CurrentIndex()})
	s.startAnalysis()
}

// startAnalysis keeps at most one call in flight. Transcript arriving
// meanwhile marks the answer dirty and is analysed when the call returns.
func (s *Session) startAnalysis() {
	if s.inflight != nil {
		s.analysisDirty = true
		return
	}
	q := s.machine.CurrentQuestion()
	if q == nil {
		return
	}
	req := analysis.Request{
		QuestionIndex: q.QuestionIndex,
		QuestionText:  q.QuestionText,
		Transcript:    q.VerbatimTranscript,
	}
	if bq, err := s.bank.QuestionByIndex(q.QuestionIndex); err == nil {
		req.QuestionContext = bq.Context
	}
	s.analysisDirty = false
	call := s.analyzer.Analyze(s.ctx, req)
	s.inflight = call
	go func() {
		<-call.Done()
		s.post(func() { s.onAnalysis(call) })
	}()
}

// onAnalysis stores a result only for the question it was made for.
func (s *Session) onAnalysis(call *analysis.Call) {
	if call == s.inflight {
		s.inflight = nil
	}
	idx := call.Request.QuestionIndex
	res := call.Result()
	if errors.Is(call.Err(), analysis.ErrCancelled) {
		return
	}
	if s.machine.Phase() != types.PhaseActive || s.machine.CurrentIndex() != idx {
		metricStaleAnalyses.Inc()
		s.record("analysis_discarded", map[string]any{"question_index": idx, "current_index": s.machine.CurrentIndex()})
		return
	}
	s.lastAnalysis[idx] = res
	if _, err := s.machine.ApplyAnalysis(idx, res); err != nil {
		log.Printf("[session] id=%s apply analysis: %v", s.id, err)
	}
	payload := map[string]any{
		"question_index":        idx,
		"completion_confidence": res.CompletionConfidence,
		"is_off_topic":          res.IsOffTopic,
		"missing_aspects":       res.MissingAspects,
	}
	if call.Err() != nil {
		payload["error"] = call.Err().Error()
	}
	s.record("analysis", payload)
	if s.analysisDirty {
		s.startAnalysis()
	}
}

func (s *Session) onSilence(ev silence.SilenceEvent) {
	if s.machine.Phase() != types.PhaseActive {
		return
	}
	if s.floor.IsAISpeaking() {
		metricSilenceIgnored.Inc()
		return
	}
	idx := s.machine.CurrentIndex()
	var last *types.AnalysisResult
	if a, ok := s.lastAnalysis[idx]; ok {
		last = &a
	}
	d := s.engine.Evaluate(s.machine.CurrentQuestion(), last, s.machine.TotalQuestions(), idx)
	s.record("decision", map[string]any{
		"action":         d.Action,
		"reason":         d.Reason,
		"question_index": idx,
		"silence_ms":     ev.Duration.Milliseconds(),
	})
	log.Printf("[session] id=%s q=%d decision=%s (%s)", s.id, idx, d.Action, d.Reason)
	s.execute(d)
}

func (s *Session) execute(d types.DecisionResult) {
	switch d.Action {
	case types.ActionStaySilent:
	case types.ActionAskFollowUp, types.ActionRedirect:
		if d.Instruction != nil {
			s.sendInstruction(*d.Instruction)
		}
	case types.ActionNextQuestion:
		s.nextQuestion()
	case types.ActionEndInterview:
		_ = s.end(ReasonCompleted, nil)
	}
}

func (s *Session) nextQuestion() {
	idx := s.machine.CurrentIndex()
	if err := s.machine.CompleteCurrentQuestion(); err != nil {
		log.Printf("[session] id=%s complete question %d: %v", s.id, idx, err)
		return
	}
	delete(s.lastAnalysis, idx)
	s.engine.ResetQuestion(idx)
	s.analyzer.CancelAll()
	s.inflight, s.analysisDirty = nil, false
	if s.machine.Phase() != types.PhaseActive {
		_ = s.end(ReasonCompleted, nil)
		return
	}
	if err := s.machine.StartCurrentQuestion(); err != nil {
		log.Printf("[session] id=%s start question: %v", s.id, err)
		return
	}
	s.askCurrent()
}

func (s *Session) askCurrent() {
	q := s.machine.CurrentQuestion()
	if q == nil {
		return
	}
	s.sendInstruction(types.ControlInstruction{Type: types.InstructionAskQuestion, Content: q.QuestionText})
}

func (s *Session) sendInstruction(ins types.ControlInstruction) {
	err := s.voice.SendControlInstruction(ins)
	payload := map[string]any{"type": ins.Type, "content": ins.Content}
	if err != nil {
		payload["error"] = err.Error()
		log.Printf("[session] id=%s send %s: %v", s.id, ins.Type, err)
	}
	metricInstructions.WithLabelValues(string(ins.Type)).Inc()
	s.record("instruction", payload)
}

// end moves the session to its terminal phase, writes the record and tears
// down. Runs on the loop.
func (s *Session) end(reason string, cause error) error {
	if s.machine.Phase().IsTerminal() {
		return nil
	}
	if s.timeout != nil {
		s.timeout.Stop()
	}

	grace := time.Duration(0)
	var err error
	switch {
	case reason == ReasonCompleted && (s.machine.Phase() == types.PhaseActive || s.machine.Phase() == types.PhaseCompleting):
		if s.machine.Phase() == types.PhaseActive {
			if cerr := s.machine.CompleteCurrentQuestion(); cerr != nil {
				log.Printf("[session] id=%s complete last question: %v", s.id, cerr)
			}
		}
		s.sendInstruction(types.ControlInstruction{Type: types.InstructionEndInterview})
		grace = s.cfg.GoodbyeGrace
		if err = s.machine.CompleteInterview(); err == nil {
			s.persist.PersistCompleted(s.machine.State())
		}
	case reason == ReasonError || cause != nil:
		msg := reason
		if cause != nil {
			msg = cause.Error()
		}
		if err = s.machine.SetError(msg); err == nil {
			s.persist.PersistError(s.machine.State(), cause)
		}
	default:
		if err = s.machine.AbandonInterview(); err == nil {
			s.persist.PersistAbandoned(s.machine.State(), reason)
		}
	}
	if err != nil {
		log.Printf("[session] id=%s end(%s): %v", s.id, reason, err)
		return err
	}

	phase := s.machine.Phase()
	metricEnded.WithLabelValues(string(phase)).Inc()
	s.record("session_ended", map[string]any{"reason": reason, "phase": phase})
	log.Printf("[session] id=%s ended reason=%s phase=%s", s.id, reason, phase)
	s.teardown(grace)
	return nil
}
