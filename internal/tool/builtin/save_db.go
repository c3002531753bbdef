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

package builtin

import (
	"context"
	"encoding/json"

	"voice-platform/internal/call"
	"voice-platform/internal/tool"
)

// RepresentativeStore 代表请求登记依赖，由 integration.Client 实现
type RepresentativeStore interface {
	SaveRepresentativeRequest(ctx context.Context, data map[string]any) (json.RawMessage, error)
}

// SaveDBTool 实现 save_db：补齐会话身份字段后登记到 CRM
type SaveDBTool struct {
	store RepresentativeStore
}

// NewSaveDBTool 创建 save_db 工具
func NewSaveDBTool(store RepresentativeStore) *SaveDBTool {
	return &SaveDBTool{store: store}
}

// Name 实现 tool.Tool
func (t *SaveDBTool) Name() string { return "save_db" }

// Description 实现 tool.Tool
func (t *SaveDBTool) Description() string {
	return "登记客户的代表请求。telefon、conversation_id、agent_id 由会话补齐。"
}

// Schema 实现 tool.Tool
func (t *SaveDBTool) Schema() tool.Schema {
	return tool.Schema{
		Type:        "object",
		Description: "代表请求字段",
		Properties: map[string]tool.SchemaProperty{
			"ad_soyad":           {Type: "string", Description: "客户姓名"},
			"sube_tercihi":       {Type: "string", Description: "门店偏好"},
			"arac_marka":         {Type: "string", Description: "车辆品牌/型号"},
			"plaka":              {Type: "string", Description: "车牌"},
			"sasi_no":            {Type: "string", Description: "车架号"},
			"yil":                {Type: "string", Description: "年份"},
			"kilometre":          {Type: "string", Description: "里程"},
			"butce":              {Type: "string", Description: "预算"},
			"durum":              {Type: "string", Description: "状态"},
			"danisman_adi":       {Type: "string", Description: "顾问姓名"},
			"iletisim_saati":     {Type: "string", Description: "联系时间"},
			"kayit_zamani":       {Type: "string", Description: "登记时间"},
			"hizmet_turu":        {Type: "string", Description: "服务类型"},
			"tarih_saat_tercihi": {Type: "string", Description: "期望日期时间"},
			"aciklama":           {Type: "string", Description: "说明"},
			"talep_turu":         {Type: "string", Description: "请求类型"},
		},
		Required: []string{"ad_soyad"},
	}
}

// Execute 实现 tool.Tool；登记成功后标记会话已完成工具调用
func (t *SaveDBTool) Execute(ctx context.Context, sess *call.Session, args map[string]any) (any, error) {
	data := make(map[string]any, len(args)+3)
	for k, v := range args {
		data[k] = v
	}
	data["telefon"] = sess.CallerNumber()
	data["conversation_id"] = sess.ConversationID()
	data["agent_id"] = sess.AgentID()

	resp, err := t.store.SaveRepresentativeRequest(ctx, data)
	if err != nil {
		return nil, tool.NewError("Failed to save data to database.", err)
	}
	sess.MarkToolCallMade()
	return resp, nil
}
