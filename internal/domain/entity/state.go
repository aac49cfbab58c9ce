package entity

import "fmt"

// RequestState этап обработки одного запроса на анализ
type RequestState string

const (
	StateReceived         RequestState = "received"          // запрос принят
	StateValidated        RequestState = "validated"         // расширение и размер проверены
	StateDecoded          RequestState = "decoded"           // изображение прочитано
	StateSaliencyComputed RequestState = "saliency_computed" // карта заметности построена
	StateRendered         RequestState = "rendered"          // тепловая карта закодирована
	StateResponded        RequestState = "responded"         // ответ отдан клиенту
	StateFailed           RequestState = "failed"            // запрос завершился ошибкой
)

var nextState = map[RequestState]RequestState{
	StateReceived:         StateValidated,
	StateValidated:        StateDecoded,
	StateDecoded:          StateSaliencyComputed,
	StateSaliencyComputed: StateRendered,
	StateRendered:         StateResponded,
}

// Terminal сообщает, является ли состояние конечным
func (s RequestState) Terminal() bool {
	return s == StateResponded || s == StateFailed
}

// Trace хранит историю переходов запроса
type Trace struct {
	States []RequestState
	Kind   ErrorKind // заполняется при переходе в StateFailed
}

// NewTrace начинает трассу в состоянии Received
func NewTrace() *Trace {
	return &Trace{States: []RequestState{StateReceived}}
}

// Current возвращает текущее состояние
func (t *Trace) Current() RequestState {
	return t.States[len(t.States)-1]
}

// Advance переводит запрос в следующее состояние конвейера
func (t *Trace) Advance(to RequestState) error {
	cur := t.Current()
	if next, ok := nextState[cur]; !ok || next != to {
		return fmt.Errorf("illegal transition %s -> %s", cur, to)
	}
	t.States = append(t.States, to)
	return nil
}

// Fail переводит запрос в StateFailed из любого незавершённого состояния
func (t *Trace) Fail(kind ErrorKind) error {
	cur := t.Current()
	if cur.Terminal() {
		return fmt.Errorf("illegal transition %s -> %s", cur, StateFailed)
	}
	t.States = append(t.States, StateFailed)
	t.Kind = kind
	return nil
}
