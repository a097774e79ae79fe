package engine

import "github.com/xela07ax/latch-escrow/internal/domain"

// EventSink — подписчик доменных событий контроллера.
// Emit вызывается под блокировкой контроллера, реализация обязана быть неблокирующей.
type EventSink interface {
	Emit(event domain.Event)
}

// EventSinkFunc позволяет использовать функцию как EventSink
type EventSinkFunc func(event domain.Event)

func (f EventSinkFunc) Emit(event domain.Event) { f(event) }

// StateSink принимает полный снимок состояния после каждого изменения
type StateSink interface {
	Save(state domain.State)
}
