package contact

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// TestApi is an in-memory Api implementation for unit tests.
type TestApi struct {
	mutex    sync.Mutex
	messages []Message
	lastID   int64

	// when set, the next mutating call fails with this error
	NextErr error
}

func NewTestApi() *TestApi {
	return &TestApi{}
}

func (ta *TestApi) takeErr() error {
	err := ta.NextErr
	ta.NextErr = nil
	return err
}

func (ta *TestApi) Add(_ context.Context, message *Message) (*Message, error) {
	ta.mutex.Lock()
	defer ta.mutex.Unlock()

	if err := ta.takeErr(); err != nil {
		return nil, err
	}

	ta.lastID++
	stored := *message
	stored.ID = strconv.FormatInt(ta.lastID, 10)
	stored.Fecha = time.Now().UTC()
	stored.Leido = false
	ta.messages = append(ta.messages, stored)
	return &stored, nil
}

func (ta *TestApi) List(_ context.Context) ([]Message, error) {
	ta.mutex.Lock()
	defer ta.mutex.Unlock()

	if err := ta.takeErr(); err != nil {
		return nil, err
	}

	messages := make([]Message, len(ta.messages))
	copy(messages, ta.messages)
	return messages, nil
}

func (ta *TestApi) Update(_ context.Context, id string, patch Patch) (*Message, error) {
	ta.mutex.Lock()
	defer ta.mutex.Unlock()

	if err := ta.takeErr(); err != nil {
		return nil, err
	}

	for i := range ta.messages {
		if ta.messages[i].ID == id {
			patch.apply(&ta.messages[i])
			updated := ta.messages[i]
			return &updated, nil
		}
	}
	return nil, ErrMessageNotFound
}

func (ta *TestApi) Delete(_ context.Context, id string) error {
	ta.mutex.Lock()
	defer ta.mutex.Unlock()

	if err := ta.takeErr(); err != nil {
		return err
	}

	for i := range ta.messages {
		if ta.messages[i].ID == id {
			ta.messages = append(ta.messages[:i], ta.messages[i+1:]...)
			return nil
		}
	}
	return nil
}

func (ta *TestApi) Count(_ context.Context) (int, error) {
	ta.mutex.Lock()
	defer ta.mutex.Unlock()
	return len(ta.messages), nil
}
