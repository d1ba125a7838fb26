package dto

// Envelope is the response shape shared by every endpoint. Failures never carry data.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    *T     `json:"data,omitempty"`
}

// Empty is the payload type of envelopes that carry no data.
type Empty struct{}

func OK[T any](data T) Envelope[T] {
	return Envelope[T]{Success: true, Data: &data}
}

func OKWithMessage[T any](message string, data T) Envelope[T] {
	return Envelope[T]{Success: true, Message: message, Data: &data}
}

func Done(message string) Envelope[Empty] {
	return Envelope[Empty]{Success: true, Message: message}
}

func Failure(message string) Envelope[Empty] {
	return Envelope[Empty]{Success: false, Message: message}
}
