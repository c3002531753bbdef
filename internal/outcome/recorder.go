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
	"context"
	"encoding/json"
	"strconv"
	"time"

	"voice-platform/internal/call"
	"voice-platform/internal/integration"
	"voice-platform/pkg/log"
	"voice-platform/pkg/metrics"
)

// Store CRM 登记依赖，由 integration.Client 实现
type Store interface {
	SubmitRepresentativeRequest(ctx context.Context, rec integration.RepresentativeRequest) (json.RawMessage, error)
}

// Recorder 持久化分类结果；失败只记录日志，不影响通话收尾
type Recorder struct {
	store   Store
	timeout time.Duration
	logger  *log.Logger
	now     func() time.Time
}

// NewRecorder 创建 Recorder；timeout <= 0 时默认 10s
func NewRecorder(store Store, timeout time.Duration, logger *log.Logger) *Recorder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Recorder{store: store, timeout: timeout, logger: logger, now: time.Now}
}

// Record 按分类生成并提交记录，返回是否登记成功
func (r *Recorder) Record(ctx context.Context, sess *call.Session, class Class, d Detail) bool {
	rec, ok := BuildRecord(class, sess, d, r.now())
	if !ok {
		metrics.CallOutcomeTotal.WithLabelValues(class.String(), "false").Inc()
		return false
	}

	// 通话上下文可能已随连接关闭取消，登记使用独立的超时
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	logger := r.logger.With("call_sid", sess.CorrelationID(), "outcome", class.String(), "durum", rec.Status)
	_, err := r.store.SubmitRepresentativeRequest(ctx, rec)
	persisted := err == nil
	metrics.CallOutcomeTotal.WithLabelValues(class.String(), strconv.FormatBool(persisted)).Inc()
	if err != nil {
		logger.Error("通话结果登记失败", "error", err)
		return false
	}
	logger.Info("通话结果已登记")
	return true
}
