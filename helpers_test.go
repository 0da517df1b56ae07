package pagestore

import "github.com/unkn0wn-root/pagestore/provider/memcached"

func memcachedConfig(port int) memcached.Config {
	return memcached.Config{Servers: []string{"127.0.0.1"}, Port: port}
}
