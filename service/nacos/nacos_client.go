package nacos

import (
	errs "PPGateway/tools/errs"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/naming_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
)

type Options struct {
	Addr      string
	Port      uint64
	Namespace string
	Username  string
	Password  string
}

func NewConfigClient(o Options) (config_client.IConfigClient, error) {
	client, err := clients.NewConfigClient(vo.NacosClientParam{
		ClientConfig:  clientConfig(o),
		ServerConfigs: serverConfig(o),
	})
	if err != nil {
		return nil, errs.WrapMsg(err, "create nacos config client", "addr", o.Addr)
	}
	return client, nil
}

func NewNamingClient(o Options) (naming_client.INamingClient, error) {
	client, err := clients.NewNamingClient(vo.NacosClientParam{
		ClientConfig:  clientConfig(o),
		ServerConfigs: serverConfig(o),
	})
	if err != nil {
		return nil, errs.WrapMsg(err, "create nacos naming client", "addr", o.Addr)
	}
	return client, nil
}

func serverConfig(o Options) []constant.ServerConfig {
	port := o.Port
	if port == 0 {
		port = 8848
	}
	return []constant.ServerConfig{
		*constant.NewServerConfig(o.Addr, port),
	}
}

func clientConfig(o Options) *constant.ClientConfig {
	return constant.NewClientConfig(
		constant.WithNamespaceId(o.Namespace),
		constant.WithTimeoutMs(5000),
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogLevel("warn"),
		constant.WithCacheDir("nacos/cache"),
		constant.WithLogDir("nacos/log"),
		constant.WithUsername(o.Username),
		constant.WithPassword(o.Password),
	)
}
