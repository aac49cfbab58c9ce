package entity

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind тип ошибки обработки запроса
type ErrorKind string

const (
	KindInvalidFileType ErrorKind = "InvalidFileType"
	KindFileTooLarge    ErrorKind = "FileTooLarge"
	KindImageTooLarge   ErrorKind = "ImageTooLarge"
	KindDecode          ErrorKind = "DecodeError"
	KindSaliency        ErrorKind = "SaliencyComputationError"
	KindMissingFile     ErrorKind = "MissingFile"
	KindEncode          ErrorKind = "EncodeError"
	KindTimeout         ErrorKind = "Timeout"
	KindCanceled        ErrorKind = "Canceled"
)

// StatusClientClosedRequest клиент ушёл, не дождавшись ответа (как в nginx)
const StatusClientClosedRequest = 499

// Status возвращает HTTP-статус для типа ошибки
func (k ErrorKind) Status() int {
	switch k {
	case KindInvalidFileType, KindFileTooLarge, KindImageTooLarge, KindMissingFile:
		return http.StatusBadRequest
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindCanceled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// AnalysisError ошибка анализа, которую можно показать клиенту
type AnalysisError struct {
	Kind   ErrorKind
	Detail string // сообщение для клиента
	Err    error  // исходная причина, только для логов
}

func (e *AnalysisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// Status возвращает HTTP-статус ошибки
func (e *AnalysisError) Status() int {
	return e.Kind.Status()
}

// ErrInvalidFileType расширение файла не поддерживается
func ErrInvalidFileType(ext string) *AnalysisError {
	return &AnalysisError{
		Kind:   KindInvalidFileType,
		Detail: "invalid file type",
		Err:    fmt.Errorf("extension %q is not allowed", ext),
	}
}

// ErrFileTooLarge файл больше лимита maxMB
func ErrFileTooLarge(maxMB int) *AnalysisError {
	return &AnalysisError{
		Kind:   KindFileTooLarge,
		Detail: fmt.Sprintf("file too large (max %dMB)", maxMB),
	}
}

// ErrImageTooLarge у изображения больше maxPixels пикселей
func ErrImageTooLarge(width, height int, maxPixels int64) *AnalysisError {
	return &AnalysisError{
		Kind:   KindImageTooLarge,
		Detail: fmt.Sprintf("image too large (max %d pixels)", maxPixels),
		Err:    fmt.Errorf("image is %dx%d", width, height),
	}
}

// ErrMissingFile в запросе нет файла
func ErrMissingFile() *AnalysisError {
	return &AnalysisError{Kind: KindMissingFile, Detail: "file is required"}
}

// ErrDecode изображение не удалось прочитать
func ErrDecode(err error) *AnalysisError {
	return &AnalysisError{Kind: KindDecode, Detail: "error reading image", Err: err}
}

// ErrSaliency не удалось построить карту заметности
func ErrSaliency(err error) *AnalysisError {
	return &AnalysisError{Kind: KindSaliency, Detail: "failed to compute saliency map", Err: err}
}

// ErrEncode не удалось закодировать результат в PNG
func ErrEncode(err error) *AnalysisError {
	return &AnalysisError{Kind: KindEncode, Detail: "failed to encode heatmap", Err: err}
}

// ErrTimeout запрос не уложился в отведённое время
func ErrTimeout(err error) *AnalysisError {
	return &AnalysisError{Kind: KindTimeout, Detail: "analysis timed out", Err: err}
}

// ErrCanceled запрос отменён вызывающей стороной
func ErrCanceled(err error) *AnalysisError {
	return &AnalysisError{Kind: KindCanceled, Detail: "request canceled", Err: err}
}

// AsAnalysisError достаёт AnalysisError из цепочки ошибок
func AsAnalysisError(err error) (*AnalysisError, bool) {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
