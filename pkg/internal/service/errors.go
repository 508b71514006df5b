// Package service 实现提交工作流的业务逻辑.
package service

import (
	"errors"
	"fmt"
)

// ValidationError 输入或身份格式不合法.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// ConflictError 身份或幂等键冲突.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return "conflict: " + e.Reason
}

// NotFoundError 目标不存在.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

// AuthorizationError 调用者与工件归属不匹配.
type AuthorizationError struct {
	Caller string
}

func (e *AuthorizationError) Error() string {
	return "authorization: caller " + e.Caller + " does not own this artifact"
}

// TransientExternalError 远端瞬时故障，可重试.
type TransientExternalError struct {
	Stage string
	Err   error
}

func (e *TransientExternalError) Error() string {
	return fmt.Sprintf("transient external failure at %s: %v", e.Stage, e.Err)
}

func (e *TransientExternalError) Unwrap() error { return e.Err }

// PermanentExternalError 远端终态错误，需人工介入.
type PermanentExternalError struct {
	Stage string
	Err   error
}

func (e *PermanentExternalError) Error() string {
	return fmt.Sprintf("permanent external failure at %s: %v", e.Stage, e.Err)
}

func (e *PermanentExternalError) Unwrap() error { return e.Err }

// InternalError 持久化等内部故障.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string {
	return "internal: " + e.Err.Error()
}

func (e *InternalError) Unwrap() error { return e.Err }

// IsValidation 判断是否为输入校验错误.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsConflict 判断是否为冲突错误.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// IsNotFound 判断是否为未找到错误.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsAuthorization 判断是否为归属校验错误.
func IsAuthorization(err error) bool {
	var target *AuthorizationError
	return errors.As(err, &target)
}

// IsTransientExternal 判断是否为瞬时外部错误.
func IsTransientExternal(err error) bool {
	var target *TransientExternalError
	return errors.As(err, &target)
}

// IsPermanentExternal 判断是否为永久外部错误.
func IsPermanentExternal(err error) bool {
	var target *PermanentExternalError
	return errors.As(err, &target)
}
