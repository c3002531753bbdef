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
	"fmt"
	"time"

	"voice-platform/internal/call"
	"voice-platform/internal/integration"
)

const (
	unknownName = "Bilinmiyor"

	requestTypeFailed     = "Başarısız Arama"
	requestTypeIncomplete = "Tamamlanmamış Görüşme"

	isoLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Detail 生成记录所需的终止细节
type Detail struct {
	Reason    string // final 的 completion_reason 或 close reason
	CloseCode int
}

// BuildRecord 按分类生成 CRM 记录；不需要登记的分类返回 false
func BuildRecord(class Class, sess *call.Session, d Detail, now time.Time) (integration.RepresentativeRequest, bool) {
	switch class {
	case Failed:
		rec := placeholder(sess, now)
		rec.RequestType = requestTypeFailed
		rec.Status = integration.StatusFailedCall
		rec.Description = "Arama başarısız - Sebep: " + orDefault(d.Reason, "bilinmiyor")
		return rec, true
	case Incomplete:
		rec := placeholder(sess, now)
		rec.RequestType = requestTypeIncomplete
		rec.Status = integration.StatusIncompleteConversation
		rec.Description = "Kullanıcı etkileşimi var ama kayıt tamamlanmadı - Sebep: " + orDefault(d.Reason, "normal")
		return rec, true
	case UnexpectedClose:
		rec := placeholder(sess, now)
		interaction := ""
		if sess.HasUserInteraction() {
			rec.RequestType = requestTypeIncomplete
			rec.Status = integration.StatusUnexpectedCloseWithInteraction
			interaction = " (kullanıcı etkileşimi mevcut)"
		} else {
			rec.RequestType = requestTypeFailed
			rec.Status = integration.StatusUnexpectedClose
		}
		rec.Description = fmt.Sprintf("Beklenmeyen kapanış%s - Code: %d, Reason: %s",
			interaction, d.CloseCode, orDefault(d.Reason, "bilinmiyor"))
		return rec, true
	default:
		return integration.RepresentativeRequest{}, false
	}
}

// placeholder 身份未知的记录：姓名占位，电话取主叫
func placeholder(sess *call.Session, now time.Time) integration.RepresentativeRequest {
	ts := now.UTC().Format(isoLayout)
	return integration.RepresentativeRequest{
		FullName:       unknownName,
		Phone:          sess.CallerNumber(),
		ContactTime:    ts,
		RecordTime:     ts,
		ConversationID: sess.ConversationID(),
		AgentID:        sess.AgentID(),
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
