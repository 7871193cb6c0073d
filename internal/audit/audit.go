package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/qwestard/codassistant/internal/repository"
)

const (
	ActionStatusChange = "status_change"
	ActionOrderCreated = "order_created"
	ActionStepChange   = "step_change"
	ActionRequest      = "request"
)

type AuditLog struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	OrderID   string    `json:"order_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	OldState  string    `json:"old_state,omitempty"`
	NewState  string    `json:"new_state,omitempty"`
	Endpoint  string    `json:"endpoint,omitempty"`
	Request   string    `json:"request,omitempty"`
	Message   string    `json:"message,omitempty"`
}

type AuditPoolConfig struct {
	BatchSize   int
	Timeout     time.Duration
	ChannelSize int
}

type AuditLogProcessor interface {
	Process(ctx context.Context, batch []AuditLog) error
}

// Logger is what producers of audit records depend on.
type Logger interface {
	Log(record AuditLog)
}

type DBProcessor struct {
	db *sql.DB
}

func NewDBProcessor(db *sql.DB) *DBProcessor {
	return &DBProcessor{db: db}
}

func (p *DBProcessor) Process(ctx context.Context, batch []AuditLog) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO audit_logs (timestamp, action, order_id, session_id, old_state, new_state, endpoint, request, message) VALUES `)

	params := make([]interface{}, 0, len(batch)*9)
	paramIndex := 1
	for i, rec := range batch {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(")
		for j := 0; j < 9; j++ {
			if j > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(fmt.Sprintf("$%d", paramIndex+j))
		}
		sb.WriteString(")")
		paramIndex += 9
		params = append(params, rec.Timestamp, rec.Action, rec.OrderID, rec.SessionID, rec.OldState, rec.NewState, rec.Endpoint, rec.Request, rec.Message)
	}
	if _, err := p.db.ExecContext(ctx, sb.String(), params...); err != nil {
		return fmt.Errorf("DBProcessor error: %w", err)
	}
	return nil
}

type StdoutProcessor struct {
	Filter string
	Out    io.Writer
}

func (p *StdoutProcessor) Process(_ context.Context, batch []AuditLog) error {
	out := p.Out
	if out == nil {
		out = os.Stdout
	}
	for _, rec := range batch {
		if p.Filter != "" &&
			!strings.Contains(strings.ToLower(rec.Message), strings.ToLower(p.Filter)) {
			continue
		}
		fmt.Fprintf(out, "AUDIT: %s | %s | order=%s session=%s | %s -> %s | %s\n",
			rec.Timestamp.Format(time.RFC3339), rec.Action, rec.OrderID, rec.SessionID, rec.OldState, rec.NewState, rec.Message)
	}
	return nil
}

// EventQueue stores an outbox event for later publication.
type EventQueue interface {
	Enqueue(ctx context.Context, event repository.OutboxEvent) error
}

// OutboxProcessor queues order and conversation records for Kafka. HTTP
// request records stay out of the outbox.
type OutboxProcessor struct {
	events EventQueue
}

func NewOutboxProcessor(events EventQueue) *OutboxProcessor {
	return &OutboxProcessor{events: events}
}

func (p *OutboxProcessor) Process(ctx context.Context, batch []AuditLog) error {
	for _, rec := range batch {
		if rec.Action == ActionRequest {
			continue
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal audit record: %w", err)
		}
		key := rec.OrderID
		if key == "" {
			key = rec.SessionID
		}
		ev := repository.OutboxEvent{Action: rec.Action, Key: key, Payload: data}
		if err := p.events.Enqueue(ctx, ev); err != nil {
			return fmt.Errorf("OutboxProcessor error: %w", err)
		}
	}
	return nil
}

type AuditWorkerPool struct {
	inputCh    chan AuditLog
	processors []AuditLogProcessor
	batchSize  int
	timeout    time.Duration

	wg sync.WaitGroup
}

func NewAuditWorkerPool(cfg AuditPoolConfig, processors ...AuditLogProcessor) *AuditWorkerPool {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	return &AuditWorkerPool{
		inputCh:    make(chan AuditLog, cfg.ChannelSize),
		processors: processors,
		batchSize:  cfg.BatchSize,
		timeout:    cfg.Timeout,
	}
}

func (p *AuditWorkerPool) Start(ctx context.Context, numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.worker(ctx)
		}()
	}
}

func (p *AuditWorkerPool) worker(ctx context.Context) {
	var batch []AuditLog
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			batch = append(batch, p.drain()...)
			if len(batch) > 0 {
				p.processBatch(batch)
			}
			return
		case rec := <-p.inputCh:
			batch = append(batch, rec)
			if len(batch) >= p.batchSize {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				p.processBatch(batch)
				batch = nil
				timer.Reset(p.timeout)
			}
		case <-timer.C:
			if len(batch) > 0 {
				p.processBatch(batch)
				batch = nil
			}
			timer.Reset(p.timeout)
		}
	}
}

func (p *AuditWorkerPool) drain() []AuditLog {
	var rest []AuditLog
	for {
		select {
		case rec := <-p.inputCh:
			rest = append(rest, rec)
		default:
			return rest
		}
	}
}

func (p *AuditWorkerPool) processBatch(batch []AuditLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, proc := range p.processors {
		if err := proc.Process(ctx, batch); err != nil {
			log.Printf("Error processing audit batch: %v", err)
		}
	}
}

func (p *AuditWorkerPool) Log(record AuditLog) {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	select {
	case p.inputCh <- record:
	default:
		log.Println("Audit log channel full, dropping log")
	}
}

func (p *AuditWorkerPool) Shutdown(cancelFunc context.CancelFunc) {
	cancelFunc()
	p.wg.Wait()
}

// Discard drops every record.
type Discard struct{}

func (Discard) Log(AuditLog) {}
