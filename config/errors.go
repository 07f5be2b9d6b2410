package config

import "github.com/youthconnect/gatekeeper/xerrors"

// ErrValidationFailed 验证失败
var ErrValidationFailed = xerrors.WithKind(xerrors.New("configuration validation failed"), xerrors.KindInvalidArgument)

// IsInvalidInput 检查错误是否为配置格式无效或验证失败
func IsInvalidInput(err error) bool {
	return xerrors.KindOf(err) == xerrors.KindInvalidArgument
}

// WrapLoadError 包装加载错误
func WrapLoadError(err error, message string) error {
	if err == nil {
		return nil
	}
	return xerrors.Wrapf(err, "failed to load config: %s", message)
}
