package models

// Result is the outcome of an operation that can be rejected for a business
// reason. Infrastructure failures are reported as errors next to it, never
// inside it.
type Result struct {
	Success       bool           `json:"success"`
	Notifications []Notification `json:"notifications"`
	Message       string         `json:"message,omitempty"`
}

// ResultOf is a Result carrying a payload on success.
type ResultOf[T any] struct {
	Result
	Data T `json:"data"`
}

func Ok(message string) Result {
	return Result{Success: true, Notifications: []Notification{}, Message: message}
}

func Fail(notifications []Notification, message string) Result {
	if notifications == nil {
		notifications = []Notification{}
	}
	return Result{Success: false, Notifications: notifications, Message: message}
}

func FailMessage(message string) Result {
	return Fail(nil, message)
}

func OkOf[T any](data T, message string) ResultOf[T] {
	return ResultOf[T]{Result: Ok(message), Data: data}
}

// FailOf builds a failed ResultOf; the payload is always the zero value.
func FailOf[T any](notifications []Notification, message string) ResultOf[T] {
	return ResultOf[T]{Result: Fail(notifications, message)}
}

func FailMessageOf[T any](message string) ResultOf[T] {
	return FailOf[T](nil, message)
}
