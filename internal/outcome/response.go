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

package outcome

import (
	"regexp"
)

const (
	codeRateLimitExceeded = "rate_limit_exceeded"

	apologyRateLimit   = "Üzgünüz, API hız limitlerini aştınız. "
	apologyServerError = "Üzgünüz, isteğiniz işlenirken sunucu taraflı bir hata oluştu."
)

var retryAfterPattern = regexp.MustCompile(`try again in (\d+)`)

// Response final 之后对通话的收尾动作；Say 为空表示不播报
type Response struct {
	Say    string
	Hangup bool
}

// None 无需额外动作
func (r Response) None() bool { return r.Say == "" && !r.Hangup }

// ResponseFor 仅服务端故障会播报致歉并挂断，其余原因交由引擎自行结束
func ResponseFor(reason string, engineErr *EngineError) Response {
	if reason != ReasonServerFailure && reason != ReasonServerError {
		return Response{}
	}
	if engineErr != nil && engineErr.Code == codeRateLimitExceeded {
		text := apologyRateLimit
		if m := retryAfterPattern.FindStringSubmatch(engineErr.Message); m != nil {
			text += "Lütfen " + m[1] + " saniye sonra tekrar deneyin."
		}
		return Response{Say: text, Hangup: true}
	}
	return Response{Say: apologyServerError, Hangup: true}
}
