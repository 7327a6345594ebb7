package session

import (
	"log"
	"time"
)

func (s *Session) loop() {
	defer close(s.quit)
	for fn := range s.ops {
		fn()
		if s.stopping {
			return
		}
	}
}

// post queues fn on the loop. It is dropped once the session has stopped.
func (s *Session) post(fn func()) {
	select {
	case <-s.quit:
		return
	default:
	}
	select {
	case s.ops <- fn:
	case <-s.quit:
	}
}

// do runs fn on the loop and waits for its result. It must never be called
// from the loop itself.
func (s *Session) do(fn func() error) error {
	errc := make(chan error, 1)
	select {
	case s.ops <- func() { errc <- fn() }:
	case <-s.quit:
		return ErrClosed
	}
	select {
	case err := <-errc:
		return err
	case <-s.quit:
		select {
		case err := <-errc:
			return err
		default:
			return ErrClosed
		}
	}
}

// teardown releases every resource held by the session. Connections close
// off the loop so a slow peer cannot stall it.
func (s *Session) teardown(grace time.Duration) {
	s.stopping = true
	if s.timeout != nil {
		s.timeout.Stop()
	}
	s.persist.StopCheckpointing()
	s.analyzer.CancelAll()
	s.router.Stop()
	s.detector.Stop()
	s.cancel()
	metricSessions.Dec()

	go func() {
		if err := s.stt.Stop(); err != nil {
			log.Printf("[session] id=%s stt stop: %v", s.id, err)
		}
		if grace > 0 {
			time.Sleep(grace)
		}
		if err := s.voice.Close(); err != nil {
			log.Printf("[session] id=%s voice close: %v", s.id, err)
		}
		s.pumps.Wait()
		log.Printf("[session] id=%s closed", s.id)
	}()
}
