package nacos

import (
	"PPGateway/logger"
	errs "PPGateway/tools/errs"

	"github.com/nacos-group/nacos-sdk-go/v2/vo"
)

type namingAPI interface {
	RegisterInstance(param vo.RegisterInstanceParam) (bool, error)
	DeregisterInstance(param vo.DeregisterInstanceParam) (bool, error)
}

// Registry announces this gateway instance so the REST layer can find it.
type Registry struct {
	ServiceName string
	IP          string
	Port        uint64
	Group       string
	Metadata    map[string]string

	client namingAPI
}

func NewRegistry(client namingAPI, serviceName, ip string, port uint64, group string) *Registry {
	if group == "" {
		group = "DEFAULT_GROUP"
	}
	return &Registry{
		ServiceName: serviceName,
		IP:          ip,
		Port:        port,
		Group:       group,
		Metadata:    map[string]string{},
		client:      client,
	}
}

func (r *Registry) Register() error {
	ok, err := r.client.RegisterInstance(vo.RegisterInstanceParam{
		Ip:          r.IP,
		Port:        r.Port,
		ServiceName: r.ServiceName,
		GroupName:   r.Group,
		ClusterName: "DEFAULT",
		Weight:      10,
		Enable:      true,
		Healthy:     true,
		Ephemeral:   true,
		Metadata:    r.Metadata,
	})
	if err != nil {
		return errs.WrapMsg(err, "nacos register", "service", r.ServiceName)
	}
	if !ok {
		return errs.ErrInternalServer.WrapMsg("nacos register returned false", "service", r.ServiceName)
	}
	logger.Infof("[Nacos] registered %s %s:%d meta=%v", r.ServiceName, r.IP, r.Port, r.Metadata)
	return nil
}

func (r *Registry) Deregister() error {
	ok, err := r.client.DeregisterInstance(vo.DeregisterInstanceParam{
		Ip:          r.IP,
		Port:        r.Port,
		ServiceName: r.ServiceName,
		GroupName:   r.Group,
		Cluster:     "DEFAULT",
		Ephemeral:   true,
	})
	if err != nil {
		return errs.WrapMsg(err, "nacos deregister", "service", r.ServiceName)
	}
	if !ok {
		logger.Warnf("[Nacos] instance %s:%d already gone", r.IP, r.Port)
	}
	return nil
}
