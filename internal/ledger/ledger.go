package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kirillm/sniper-bot/internal/domain"
	"github.com/kirillm/sniper-bot/pkg/utils"
)

// Версия формата файла состояния. Неизвестные поля при чтении игнорируются,
// поэтому минорные дополнения не требуют повышения версии.
const stateVersion = 1

// State сериализуемое состояние движка
type State struct {
	Version   int                         `json:"version"`
	Account   string                      `json:"account"`
	Positions map[string]*domain.Position `json:"positions"`
	Risk      domain.DailyRiskState       `json:"risk"`
	SavedAt   time.Time                   `json:"saved_at"`
}

// Ledger персистентный реестр позиций и дневных лимитов.
// Каждая мутация сохраняется на диск до возврата управления: после сбоя
// процесс восстанавливает ровно то, что было подтверждено.
type Ledger struct {
	mu     sync.Mutex
	path   string
	state  State
	logger *utils.Logger
}

// Open загружает реестр из файла или создает новый. Нечитаемый или
// поврежденный файл это отказ: торговать поверх неизвестного состояния
// нельзя, файл должен починить оператор.
func Open(path, account string, maxDailyTrades, maxPositions int, logger *utils.Logger) (*Ledger, error) {
	l := &Ledger{
		path: path,
		state: State{
			Version:   stateVersion,
			Account:   account,
			Positions: make(map[string]*domain.Position),
			Risk: domain.DailyRiskState{
				MaxDailyTrades:           maxDailyTrades,
				MaxSimultaneousPositions: maxPositions,
			},
		},
		logger: logger,
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("📒 Ledger file %s not found, starting fresh", path)
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %v: %w", path, err, domain.ErrLedgerCorrupt)
	}

	var loaded State
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parse ledger %s: %v: %w", path, err, domain.ErrLedgerCorrupt)
	}
	if loaded.Version > stateVersion {
		return nil, fmt.Errorf("ledger %s version %d newer than supported %d: %w",
			path, loaded.Version, stateVersion, domain.ErrLedgerCorrupt)
	}
	if loaded.Positions == nil {
		loaded.Positions = make(map[string]*domain.Position)
	}
	loaded.Version = stateVersion
	loaded.Account = account
	loaded.Risk.MaxDailyTrades = maxDailyTrades
	loaded.Risk.MaxSimultaneousPositions = maxPositions
	l.state = loaded

	logger.Info("📒 Ledger loaded: %d open positions, %d trades today",
		len(loaded.Positions), loaded.Risk.TradeCountToday)
	return l, nil
}

// Position возвращает копию позиции по символу
func (l *Ledger) Position(symbol string) (domain.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.state.Positions[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return clonePosition(p), true
}

// Positions возвращает копии всех открытых позиций
func (l *Ledger) Positions() []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Position, 0, len(l.state.Positions))
	for _, p := range l.state.Positions {
		out = append(out, clonePosition(p))
	}
	return out
}

// OpenCount возвращает число открытых позиций
func (l *Ledger) OpenCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.state.Positions)
}

// Risk возвращает текущее состояние дневных лимитов
func (l *Ledger) Risk() domain.DailyRiskState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Risk
}

// AdmitEntry атомарно проверяет дневные лимиты и резервирует слот под
// новую сделку. Счетчик увеличивается до выставления ордера: при отказе
// брокера слот возвращается через ReleaseEntry.
func (l *Ledger) AdmitEntry(symbol string, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.resetIfNewDay(now)

	if _, exists := l.state.Positions[symbol]; exists {
		return fmt.Errorf("admit %s: %w", symbol, domain.ErrPositionExists)
	}
	if l.state.Risk.TradeCountToday >= l.state.Risk.MaxDailyTrades {
		return fmt.Errorf("admit %s: %d trades today: %w",
			symbol, l.state.Risk.TradeCountToday, domain.ErrRiskLimitExceeded)
	}
	if len(l.state.Positions) >= l.state.Risk.MaxSimultaneousPositions {
		return fmt.Errorf("admit %s: %d positions open: %w",
			symbol, len(l.state.Positions), domain.ErrRiskLimitExceeded)
	}

	l.state.Risk.TradeCountToday++
	return l.save()
}

// ReleaseEntry возвращает зарезервированный слот после неудачного входа
func (l *Ledger) ReleaseEntry() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.Risk.TradeCountToday > 0 {
		l.state.Risk.TradeCountToday--
	}
	return l.save()
}

// AddPosition записывает новую позицию
func (l *Ledger) AddPosition(pos domain.Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.state.Positions[pos.Symbol]; exists {
		return fmt.Errorf("add %s: %w", pos.Symbol, domain.ErrPositionExists)
	}
	p := clonePosition(&pos)
	l.state.Positions[pos.Symbol] = &p
	return l.save()
}

// UpdatePosition применяет мутацию к позиции и сохраняет результат
func (l *Ledger) UpdatePosition(symbol string, mutate func(*domain.Position)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.state.Positions[symbol]
	if !ok {
		return fmt.Errorf("update %s: %w", symbol, domain.ErrPositionNotFound)
	}
	mutate(p)
	return l.save()
}

// RemovePosition удаляет закрытую позицию
func (l *Ledger) RemovePosition(symbol string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.state.Positions[symbol]; !ok {
		return fmt.Errorf("remove %s: %w", symbol, domain.ErrPositionNotFound)
	}
	delete(l.state.Positions, symbol)
	return l.save()
}

// PendingRolls возвращает позиции с незавершенным ролловером: exit-нога
// исполнена, entry-нога нет. Движок доисполняет их при старте.
func (l *Ledger) PendingRolls() []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Position
	for _, p := range l.state.Positions {
		if p.PendingRoll {
			out = append(out, clonePosition(p))
		}
	}
	return out
}

// ResetDaily сбрасывает дневной счетчик сделок
func (l *Ledger) ResetDaily(now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.Risk.TradeCountToday = 0
	l.state.Risk.ResetDate = now.Format("2006-01-02")
	l.logger.Info("🌅 Daily trade counter reset for %s", l.state.Risk.ResetDate)
	return l.save()
}

// resetIfNewDay сбрасывает счетчик при первой операции нового дня.
// Вызывается под mutex.
func (l *Ledger) resetIfNewDay(now time.Time) {
	today := now.Format("2006-01-02")
	if l.state.Risk.ResetDate != today {
		l.state.Risk.TradeCountToday = 0
		l.state.Risk.ResetDate = today
	}
}

// save пишет состояние атомарно: временный файл, fsync, rename.
// Вызывается под mutex.
func (l *Ledger) save() error {
	l.state.SavedAt = time.Now()
	data, err := json.MarshalIndent(l.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, ".ledger-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close ledger: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("rename ledger: %w", err)
	}
	return nil
}

func clonePosition(p *domain.Position) domain.Position {
	out := *p
	if p.Trailing != nil {
		ts := *p.Trailing
		out.Trailing = &ts
	}
	if p.EntryReasons != nil {
		out.EntryReasons = append([]string(nil), p.EntryReasons...)
	}
	return out
}
