package main

// 引入平台插件，触发各平台的 init() 完成注册
import (
	_ "github.com/sshcollectorpro/switchdoc/addone/collect/platforms/cisco_ios"
	_ "github.com/sshcollectorpro/switchdoc/addone/interact/platforms/cisco_ios"
)
