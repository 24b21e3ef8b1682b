package llm

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// DecodeConfig 将工厂配置 map 解码到结构体，空值不会覆盖 out 中的默认值。
func DecodeConfig(config map[string]any, out any) error {
	filtered := make(map[string]any, len(config))
	for k, v := range config {
		if isZero(v) {
			continue
		}
		filtered[k] = v
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("创建配置解码器失败: %w", err)
	}
	if err := dec.Decode(filtered); err != nil {
		return fmt.Errorf("解析供应商配置失败: %w", err)
	}
	return nil
}

func isZero(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case int:
		return val == 0
	case float64:
		return val == 0
	default:
		return false
	}
}
