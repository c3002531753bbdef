// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errors 提供统一错误辅助与错误分类，不依赖 internal
package errors

import (
	"errors"
	"fmt"
)

// 常用哨兵错误
var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidArg = errors.New("invalid argument")
)

// 通话错误分类；调用方通过 errors.Is 判断
var (
	// ErrConfigurationMissing 必需的凭据或 agent 配置缺失，对当前通话致命
	ErrConfigurationMissing = errors.New("configuration missing")
	// ErrRoutingFailure 无法为通话解析出 agent，对当前通话致命
	ErrRoutingFailure = errors.New("routing failure")
	// ErrToolExecution 工具执行失败，以 is_error 结果返回给 AI 引擎，通话继续
	ErrToolExecution = errors.New("tool execution error")
	// ErrIntegration 外部 HTTP 调用或校验失败
	ErrIntegration = errors.New("integration error")
	// ErrTransport 传输层上报的错误，仅用于观测
	ErrTransport = errors.New("transport error")
)

// Wrap 包装错误并附加消息
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 带格式的 Wrap
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is 透传标准库 errors.Is，便于调用方只引入本包
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As 透传标准库 errors.As
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Kind 返回 err 所属的分类哨兵；不属于任何分类时返回 nil
func Kind(err error) error {
	for _, k := range []error{ErrConfigurationMissing, ErrRoutingFailure, ErrToolExecution, ErrIntegration, ErrTransport} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
