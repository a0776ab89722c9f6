package input

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nxadm/tail"
	"github.com/rs/zerolog/log"

	"github.com/sohell-ranaa/ssh-guardian-2.0-sub001/internal/domain"
	"github.com/sohell-ranaa/ssh-guardian-2.0-sub001/internal/ports"
)

// FileTailer follows an auth log on disk and emits one event per line the
// parser recognizes. Rotation is handled by reopening the file. Lines the
// parser rejects are counted and skipped, not surfaced as errors: most of
// an sshd log is session chatter with no authentication outcome.
type FileTailer struct {
	filepath      string
	parser        ports.EventParser
	tail          *tail.Tail
	bufferSize    int
	fromBeginning bool
	linesSkipped  atomic.Uint64
	mu            sync.Mutex
	running       bool
	stopChan      chan struct{}
}

func NewFileTailer(filepath string, parser ports.EventParser, bufferSize int) *FileTailer {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &FileTailer{
		filepath:      filepath,
		parser:        parser,
		bufferSize:    bufferSize,
		fromBeginning: false,
		stopChan:      make(chan struct{}),
	}
}

// NewFileTailerFull replays the whole file before following, for scoring
// historical traffic.
func NewFileTailerFull(filepath string, parser ports.EventParser, bufferSize int) *FileTailer {
	t := NewFileTailer(filepath, parser, bufferSize)
	t.fromBeginning = true
	return t
}

func (t *FileTailer) SetFromBeginning(fromBeginning bool) {
	t.fromBeginning = fromBeginning
}

func (t *FileTailer) Start(ctx context.Context) (<-chan *domain.Event, <-chan error) {
	eventChan := make(chan *domain.Event, t.bufferSize)
	errChan := make(chan error, 10)

	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		close(eventChan)
		return eventChan, errChan
	}
	t.running = true
	t.stopChan = make(chan struct{})
	t.mu.Unlock()

	go func() {
		defer close(eventChan)
		defer close(errChan)

		whence := 2
		if t.fromBeginning {
			whence = 0
		}

		config := tail.Config{
			Follow:    true,
			ReOpen:    true,
			MustExist: false,
			Poll:      false,
			Location:  &tail.SeekInfo{Offset: 0, Whence: whence},
		}

		var err error
		t.tail, err = tail.TailFile(t.filepath, config)
		if err != nil {
			log.Error().Err(err).Str("file", t.filepath).Msg("Failed to tail auth log")
			errChan <- err
			return
		}

		log.Info().Str("file", t.filepath).Str("format", t.parser.Format()).Msg("Started tailing auth log")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("Context cancelled, stopping tailer")
				return
			case <-t.stopChan:
				log.Info().Msg("Stop signal received, stopping tailer")
				return
			case line, ok := <-t.tail.Lines:
				if !ok {
					log.Info().Msg("Tail channel closed")
					return
				}
				if line.Err != nil {
					log.Warn().Err(line.Err).Msg("Error reading line")
					errChan <- line.Err
					continue
				}
				if line.Text == "" {
					continue
				}

				event, err := t.parser.Parse(line.Text)
				if err != nil {
					t.linesSkipped.Add(1)
					log.Debug().Err(err).Str("line", line.Text).Msg("Skipped unrecognized line")
					continue
				}

				select {
				case eventChan <- event:
				case <-ctx.Done():
					return
				case <-t.stopChan:
					return
				}
			}
		}
	}()

	return eventChan, errChan
}

func (t *FileTailer) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}

	close(t.stopChan)
	t.running = false

	if t.tail != nil {
		return t.tail.Stop()
	}
	return nil
}

func (t *FileTailer) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// LinesSkipped reports how many tailed lines the parser rejected.
func (t *FileTailer) LinesSkipped() uint64 {
	return t.linesSkipped.Load()
}
