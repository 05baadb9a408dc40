package alert

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"sentinel/internal/engine"
	"sentinel/internal/models"
	"sentinel/pkg/retry"
)

// Profile - параметры доставки для уровня критичности
type Profile struct {
	Color      int           // цвет embed
	Cooldown   time.Duration // окно подавления повторов одного типа
	MaxRetries int           // попыток доставки
}

// Профили уровней критичности
var severityProfiles = map[string]Profile{
	models.SeverityEmergency: {Color: 0xFF0000, Cooldown: 60 * time.Second, MaxRetries: 3},
	models.SeverityWarning:   {Color: 0xFFA500, Cooldown: 300 * time.Second, MaxRetries: 2},
	models.SeverityInfo:      {Color: 0x0000FF, Cooldown: 600 * time.Second, MaxRetries: 1},
}

// Заголовок и рекомендация оператору для каждого типа алерта
var alertCatalog = map[string]struct {
	Title      string
	Suggestion string
}{
	models.AlertTypeOrderFailed:       {"🚨 Ордер отклонён", "Проверьте статус биржи и параметры ордера"},
	models.AlertTypeOrderTimeout:      {"⏱ Таймаут исполнения", "Ордер отменён, проверьте ликвидность инструмента"},
	models.AlertTypePartialFill:       {"Частичное исполнение", "Остаток будет исполнен или отменён по таймауту"},
	models.AlertTypeInsufficientFunds: {"Недостаточно средств", "Пополните баланс или уменьшите размер позиции"},
	models.AlertTypeHighSlippage:      {"Высокое проскальзывание", "Снизьте объём или торгуйте более ликвидные пары"},
	models.AlertTypeExchangeError:     {"🚨 Ошибка биржи", "Проверьте доступность API и ключи"},
	models.AlertTypeStrategyError:     {"Ошибка стратегии", "Проверьте журнал на исключения стратегии"},
	models.AlertTypeLiquidation:       {"🚨 Ликвидация позиций", "Смена макро-сезона, позиции закрываются"},
	models.AlertTypeDailyLossLimit:    {"🚨 Дневной лимит убытка", "Торговля на паузе до конца дня"},
	models.AlertTypeCircuitBreaker:    {"🚨 Предохранитель", "Торговля остановлена, требуется ручной сброс"},
	models.AlertTypeScoringDegraded:   {"Оценщик недоступен", "Уверенность зафиксирована на 0.5, проверьте сервис"},
}

// DispatcherConfig - параметры диспетчера оповещений
type DispatcherConfig struct {
	HistorySize int // ёмкость кольцевого буфера истории
	QueueSize   int // ёмкость очереди доставки
}

// Dispatcher - асинхронный диспетчер оповещений.
//
// Trigger никогда не блокирует вызывающего: алерт кладётся в
// буферизированную очередь, при переполнении отбрасывается с записью
// в журнал. Повторы одного типа в пределах cooldown уровня критичности
// подавляются. История хранится в кольцевом буфере фиксированной
// ёмкости, самые старые записи вытесняются.
type Dispatcher struct {
	sender Sender
	cfg    DispatcherConfig
	logger *zap.Logger

	queue chan *models.Alert

	mu       sync.Mutex
	lastSent map[string]time.Time // тип → время последнего принятого алерта
	history  []*models.Alert      // кольцевой буфер
	head     int                  // позиция следующей записи
	total    int                  // всего записано (для ID и заполненности)
}

// NewDispatcher создает диспетчер. Доставка начинается после Run.
func NewDispatcher(sender Sender, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 256
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 128
	}
	return &Dispatcher{
		sender:   sender,
		cfg:      cfg,
		logger:   logger,
		queue:    make(chan *models.Alert, cfg.QueueSize),
		lastSent: make(map[string]time.Time),
		history:  make([]*models.Alert, cfg.HistorySize),
	}
}

// Trigger принимает алерт в обработку. Реализует engine.Notifier.
func (d *Dispatcher) Trigger(alertType, severity, message string, meta map[string]interface{}) {
	profile, ok := severityProfiles[severity]
	if !ok {
		d.logger.Warn("unknown alert severity, defaulting to WARNING",
			zap.String("severity", severity))
		severity = models.SeverityWarning
		profile = severityProfiles[severity]
	}

	now := time.Now()
	d.mu.Lock()
	if last, ok := d.lastSent[alertType]; ok && now.Sub(last) < profile.Cooldown {
		d.mu.Unlock()
		engine.AlertsSuppressed.WithLabelValues(alertType).Inc()
		d.logger.Debug("alert suppressed by cooldown",
			zap.String("type", alertType),
			zap.Duration("since_last", now.Sub(last)))
		return
	}
	d.lastSent[alertType] = now

	d.total++
	a := &models.Alert{
		ID:        strconv.Itoa(d.total),
		Timestamp: now,
		Type:      alertType,
		Severity:  severity,
		Message:   message,
		Meta:      meta,
	}
	d.history[d.head] = a
	d.head = (d.head + 1) % d.cfg.HistorySize
	d.mu.Unlock()

	// Очередь не должна блокировать торговый путь
	select {
	case d.queue <- a:
	default:
		d.logger.Error("alert queue full, alert dropped",
			zap.String("type", alertType),
			zap.String("message", message))
	}
}

// Run доставляет алерты из очереди до отмены контекста
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-d.queue:
			d.deliver(ctx, a)
		}
	}
}

// deliver отправляет алерт с повторами по профилю критичности.
// Исчерпание попыток логируется и не распространяется дальше.
func (d *Dispatcher) deliver(ctx context.Context, a *models.Alert) {
	profile := severityProfiles[a.Severity]
	embed := d.buildEmbed(a)

	cfg := retry.WebhookConfig(profile.MaxRetries)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		d.logger.Warn("alert delivery retry",
			zap.String("type", a.Type),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}

	err := retry.Do(ctx, func() error {
		sendCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		return d.sender.Send(sendCtx, embed)
	}, cfg)
	if err != nil {
		d.logger.Error("alert delivery failed",
			zap.String("type", a.Type),
			zap.String("severity", a.Severity),
			zap.Error(err))
		return
	}
	engine.AlertsDispatched.WithLabelValues(a.Severity).Inc()
}

func (d *Dispatcher) buildEmbed(a *models.Alert) Embed {
	profile := severityProfiles[a.Severity]
	entry, ok := alertCatalog[a.Type]
	if !ok {
		entry.Title = a.Type
	}

	embed := Embed{
		Title:       entry.Title,
		Description: a.Message,
		Color:       profile.Color,
		Timestamp:   a.Timestamp.UTC().Format(time.RFC3339),
		Fields: []EmbedField{
			{Name: "Критичность", Value: a.Severity, Inline: true},
			{Name: "Тип", Value: a.Type, Inline: true},
		},
	}
	if entry.Suggestion != "" {
		embed.Fields = append(embed.Fields, EmbedField{Name: "Рекомендация", Value: entry.Suggestion})
	}
	return embed
}

// History возвращает последние алерты, новые первыми
func (d *Dispatcher) History(limit int) []*models.Alert {
	d.mu.Lock()
	defer d.mu.Unlock()

	size := d.total
	if size > d.cfg.HistorySize {
		size = d.cfg.HistorySize
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]*models.Alert, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (d.head - 1 - i + d.cfg.HistorySize) % d.cfg.HistorySize
		if d.history[idx] == nil {
			break
		}
		cp := *d.history[idx]
		out = append(out, &cp)
	}
	return out
}

// Resolve помечает все алерты типа разрешёнными
func (d *Dispatcher) Resolve(alertType string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, a := range d.history {
		if a != nil && a.Type == alertType && !a.Resolved {
			a.Resolved = true
			n++
		}
	}
	return n
}

// PurgeResolved убирает разрешённые алерты из истории
func (d *Dispatcher) PurgeResolved() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	var kept []*models.Alert
	purged := 0
	for i := 0; i < d.cfg.HistorySize; i++ {
		idx := (d.head + i) % d.cfg.HistorySize
		a := d.history[idx]
		if a == nil {
			continue
		}
		if a.Resolved {
			purged++
			continue
		}
		kept = append(kept, a)
	}

	d.history = make([]*models.Alert, d.cfg.HistorySize)
	copy(d.history, kept)
	d.head = len(kept) % d.cfg.HistorySize
	return purged
}

// AlertStatus - сводка по активным алертам для статусного API
type AlertStatus struct {
	Active     int            `json:"active"`
	BySeverity map[string]int `json:"by_severity"`
	QueueDepth int            `json:"queue_depth"`
	LastAlert  *models.Alert  `json:"last_alert,omitempty"`
}

// Status возвращает сводку по неразрешённым алертам
func (d *Dispatcher) Status() AlertStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := AlertStatus{
		BySeverity: make(map[string]int),
		QueueDepth: len(d.queue),
	}
	var last *models.Alert
	for _, a := range d.history {
		if a == nil || a.Resolved {
			continue
		}
		st.Active++
		st.BySeverity[a.Severity]++
		if last == nil || a.Timestamp.After(last.Timestamp) {
			last = a
		}
	}
	if last != nil {
		cp := *last
		st.LastAlert = &cp
	}
	return st
}
