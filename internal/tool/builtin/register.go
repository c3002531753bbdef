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
	"voice-platform/internal/tool/registry"
	"voice-platform/pkg/log"
)

// Deps 内置工具依赖
type Deps struct {
	Weather         WeatherProvider
	Representatives RepresentativeStore
	Logger          *log.Logger
}

// Register 注册全部内置工具；缺少依赖的工具不注册，调用时按未知工具处理
func Register(reg *registry.Registry, deps Deps) error {
	if deps.Weather != nil {
		if err := reg.Register(NewWeatherTool(deps.Weather)); err != nil {
			return err
		}
	}
	if err := reg.Register(NewAppointmentTool(deps.Logger)); err != nil {
		return err
	}
	if deps.Representatives != nil {
		if err := reg.Register(NewSaveDBTool(deps.Representatives)); err != nil {
			return err
		}
	}
	return nil
}
