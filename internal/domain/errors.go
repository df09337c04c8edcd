package domain

import "errors"

var (
	// ErrDataUnavailable возвращается когда провайдер не отдал данные по инструменту
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrExecutionFailed возвращается когда ордер отклонен или не был отправлен
	ErrExecutionFailed = errors.New("order execution failed")

	// ErrLedgerCorrupt возвращается когда сохраненный реестр позиций нечитаем
	ErrLedgerCorrupt = errors.New("ledger record corrupt")

	// ErrConfigInvalid возвращается при отсутствующих или некорректных порогах конфигурации
	ErrConfigInvalid = errors.New("invalid configuration")

	// ErrRiskLimitExceeded возвращается при превышении дневных лимитов
	ErrRiskLimitExceeded = errors.New("risk limit exceeded")

	// ErrPositionExists возвращается при попытке открыть вторую позицию по инструменту
	ErrPositionExists = errors.New("position already open for instrument")

	// ErrPositionNotFound возвращается когда позиция по инструменту не найдена
	ErrPositionNotFound = errors.New("position not found")

	// ErrBrokerAPI возвращается при ошибке брокерского API
	ErrBrokerAPI = errors.New("broker API error")
)
