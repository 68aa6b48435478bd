package nacos

import (
	"sync"

	"PPGateway/logger"
	errs "PPGateway/tools/errs"

	"github.com/nacos-group/nacos-sdk-go/v2/vo"
)

// configSource is the part of config_client.IConfigClient used here.
type configSource interface {
	GetConfig(param vo.ConfigParam) (string, error)
	ListenConfig(param vo.ConfigParam) error
}

// ConfigWatcher holds the latest copy of one Nacos config document.
type ConfigWatcher struct {
	src    configSource
	dataID string
	group  string

	mu      sync.RWMutex
	current string
}

func NewConfigWatcher(src configSource, dataID, group string) *ConfigWatcher {
	return &ConfigWatcher{src: src, dataID: dataID, group: group}
}

// Load 第一次读取
func (w *ConfigWatcher) Load() (string, error) {
	content, err := w.src.GetConfig(vo.ConfigParam{DataId: w.dataID, Group: w.group})
	if err != nil {
		return "", errs.WrapMsg(err, "get nacos config", "dataId", w.dataID, "group", w.group)
	}
	w.set(content)
	return content, nil
}

// Watch 开始监听；onChange 在 SDK 的回调协程里执行
func (w *ConfigWatcher) Watch(onChange func(data string)) error {
	err := w.src.ListenConfig(vo.ConfigParam{
		DataId: w.dataID,
		Group:  w.group,
		OnChange: func(namespace, group, dataId, data string) {
			logger.Infof("[Nacos] config changed namespace=%s group=%s dataId=%s", namespace, group, dataId)
			w.set(data)
			if onChange != nil {
				onChange(data)
			}
		},
	})
	if err != nil {
		return errs.WrapMsg(err, "listen nacos config", "dataId", w.dataID)
	}
	return nil
}

func (w *ConfigWatcher) Current() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *ConfigWatcher) set(data string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.current = data
}
