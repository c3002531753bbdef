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
	"context"
	"encoding/json"
	"strconv"
	"strings"
)

const serviceCRM = "Maivo"

// 代表请求的状态码（durum），封闭集合
const (
	StatusFailedCall                     = "basarisiz_arama"
	StatusIncompleteConversation         = "tamamlanmamis_gorusme"
	StatusUnexpectedClose                = "beklenmeyen_kapanis"
	StatusUnexpectedCloseWithInteraction = "beklenmeyen_kapanis_etkilesim"
)

// 字段缺省哨兵值，入库前置空
const absentSentinel = "yok"

// RepresentativeRequest CRM 登记记录，所有键总是存在
type RepresentativeRequest struct {
	FullName          string `json:"ad_soyad"`
	Phone             string `json:"telefon"`
	BranchPreference  string `json:"sube_tercihi"`
	VehicleMake       string `json:"marka_model"`
	Plate             string `json:"plaka"`
	ChassisNumber     string `json:"sasi_no"`
	Year              string `json:"yil"`
	Mileage           string `json:"kilometre"`
	Budget            string `json:"butce"`
	Status            string `json:"durum"`
	AdvisorName       string `json:"danisman_adi"`
	ContactTime       string `json:"iletisim_saati"`
	RecordTime        string `json:"kayit_zamani"`
	ServiceType       string `json:"hizmet_turu"`
	PreferredDateTime string `json:"tarih_saat_tercihi"`
	Description       string `json:"aciklama"`
	RequestType       string `json:"talep_turu"`
	ConversationID    string `json:"conversation_id"`
	AgentID           string `json:"agent_id"`
}

// Validate 检查必填字段
func (r RepresentativeRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.FullName) == "" {
		missing = append(missing, "ad_soyad")
	}
	if strings.TrimSpace(r.Phone) == "" {
		missing = append(missing, "telefon")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// NewRepresentativeRequest 将工具参数整形为固定记录；车辆品牌输入键为 arac_marka
func NewRepresentativeRequest(data map[string]any) RepresentativeRequest {
	vehicle := optional(data, "arac_marka")
	if vehicle == "" {
		vehicle = optional(data, "marka_model")
	}
	return RepresentativeRequest{
		FullName:          text(data["ad_soyad"]),
		Phone:             text(data["telefon"]),
		BranchPreference:  optional(data, "sube_tercihi"),
		VehicleMake:       vehicle,
		Plate:             optional(data, "plaka"),
		ChassisNumber:     optional(data, "sasi_no"),
		Year:              optional(data, "yil"),
		Mileage:           optional(data, "kilometre"),
		Budget:            optional(data, "butce"),
		Status:            optional(data, "durum"),
		AdvisorName:       optional(data, "danisman_adi"),
		ContactTime:       optional(data, "iletisim_saati"),
		RecordTime:        optional(data, "kayit_zamani"),
		ServiceType:       optional(data, "hizmet_turu"),
		PreferredDateTime: optional(data, "tarih_saat_tercihi"),
		Description:       optional(data, "aciklama"),
		RequestType:       optional(data, "talep_turu"),
		ConversationID:    optional(data, "conversation_id"),
		AgentID:           optional(data, "agent_id"),
	}
}

func optional(data map[string]any, key string) string {
	v := text(data[key])
	if strings.EqualFold(strings.TrimSpace(v), absentSentinel) {
		return ""
	}
	return v
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// SaveRepresentativeRequest 校验并提交工具参数
func (c *Client) SaveRepresentativeRequest(ctx context.Context, data map[string]any) (json.RawMessage, error) {
	return c.SubmitRepresentativeRequest(ctx, NewRepresentativeRequest(data))
}

// SubmitRepresentativeRequest 提交已整形的记录，单次尝试
func (c *Client) SubmitRepresentativeRequest(ctx context.Context, rec RepresentativeRequest) (json.RawMessage, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if err := c.wait(ctx, limiterCRM, serviceCRM); err != nil {
		return nil, err
	}

	ctx, done := c.observe(ctx, "crm", c.crmURL)
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-api-key", c.crmAPIKey).
		SetBody(rec).
		Post(c.crmURL)
	if err != nil {
		err = &ConnectivityError{Service: serviceCRM, Err: err}
		done(err)
		return nil, err
	}
	if !resp.IsSuccess() {
		err = &RemoteError{Service: serviceCRM, StatusCode: resp.StatusCode(), Message: remoteMessage(resp)}
		done(err)
		c.logger.Warn("CRM 登记被拒绝", "status", resp.StatusCode(), "error", err)
		return nil, err
	}
	done(nil)
	return json.RawMessage(resp.Body()), nil
}
