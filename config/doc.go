// Package config 提供证据定位管线的配置管理。
//
// 支持从 YAML 文件与环境变量加载配置，
// 优先级为 默认值 → 文件 → 环境变量，
// 并在任何引擎启动前做快速失败校验。
package config
