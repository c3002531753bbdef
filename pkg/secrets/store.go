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

package secrets

import (
	"context"
	"fmt"
	"strings"

	"voice-platform/pkg/config"
	perrors "voice-platform/pkg/errors"
)

// Store 凭据读取接口；引擎 API key、CRM API key 与号码映射均经此解析
type Store interface {
	// Get 获取 secret 值，不存在时返回包装 errors.ErrNotFound 的错误
	Get(ctx context.Context, key string) (string, error)

	// Set 设置 secret 值
	Set(ctx context.Context, key string, value string) error

	// Delete 删除 secret
	Delete(ctx context.Context, key string) error

	// List 列出指定前缀的 secret keys
	List(ctx context.Context, prefix string) ([]string, error)
}

// NewStore 按 provider 创建 Store：env（默认）| memory | vault
func NewStore(cfg config.SecretsConfig) (Store, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "env":
		return NewEnvStore(), nil
	case "memory":
		return NewMemoryStoreWith(cfg.Values), nil
	case "vault":
		return NewVaultStore(VaultConfig{
			Address:    cfg.Vault.Address,
			Token:      cfg.Vault.Token,
			PathPrefix: cfg.Vault.PathPrefix,
		})
	default:
		return nil, fmt.Errorf("unsupported secret provider: %s", cfg.Provider)
	}
}

// Require 读取必需凭据；为空或不存在时返回 ErrConfigurationMissing
func Require(ctx context.Context, s Store, key string) (string, error) {
	if s == nil || key == "" {
		return "", perrors.Wrapf(perrors.ErrConfigurationMissing, "secret %q", key)
	}
	v, err := s.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("secret %q: %w: %v", key, perrors.ErrConfigurationMissing, err)
	}
	if strings.TrimSpace(v) == "" {
		return "", perrors.Wrapf(perrors.ErrConfigurationMissing, "secret %q is empty", key)
	}
	return v, nil
}

func notFound(key string) error {
	return perrors.Wrapf(perrors.ErrNotFound, "secret %s", key)
}
