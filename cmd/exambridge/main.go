// Package main 启动应用程序
package main

import "github.com/yeisme/exambridge/pkg/cmd"

//	@title			ExamBridge API
//	@version		1.0
//	@description	ExamBridge 把扫描的考试文档桥接到远端学习平台：上传解析、幂等工件、完整提交协议与自动重试。

//	@license.name	MIT
//	@license.url	https://opensource.org/license/mit/

func main() {
	if err := cmd.Execute(); err != nil {
		panic(err)
	}
}
