package response

// AppError 统一错误包装；Remedy 为前端可执行的恢复动作
type AppError struct {
	Code    int
	Message string
	Remedy  string
	Fields  map[string]string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WrapError 包装错误
func WrapError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithRemedy 附加恢复动作
func (e *AppError) WithRemedy(remedy string) *AppError {
	e.Remedy = remedy
	return e
}

// WithFields 附加字段级错误
func (e *AppError) WithFields(fields map[string]string) *AppError {
	e.Fields = fields
	return e
}

// Data 错误响应的 data 部分
func (e *AppError) Data() interface{} {
	data := make(map[string]interface{})
	if e.Remedy != "" {
		data["remedy"] = e.Remedy
	}
	if len(e.Fields) > 0 {
		data["fields"] = e.Fields
	}
	if len(data) == 0 {
		return nil
	}
	return data
}
