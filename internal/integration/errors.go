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

package integration

import (
	"fmt"
	"strings"

	perrors "voice-platform/pkg/errors"
)

// ErrLocationNotFound 地理编码无结果
var ErrLocationNotFound = perrors.Wrap(perrors.ErrIntegration, "location_not_found")

// ValidationError 必填字段缺失，请求不会发出
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s alanları zorunludur", strings.Join(e.Fields, " ve "))
}

func (e *ValidationError) Is(target error) bool {
	return target == perrors.ErrIntegration || target == perrors.ErrInvalidArg
}

// RemoteError 远端返回非 2xx
type RemoteError struct {
	Service    string
	StatusCode int
	Message    string // 远端 message 字段，缺失时为 HTTP 状态文本
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s API hatası: %s", e.Service, e.Message)
}

func (e *RemoteError) Is(target error) bool { return target == perrors.ErrIntegration }

// ConnectivityError 网络或其他传输失败
type ConnectivityError struct {
	Service string
	Err     error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s API'ye bağlantı hatası: %v", e.Service, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

func (e *ConnectivityError) Is(target error) bool { return target == perrors.ErrIntegration }
