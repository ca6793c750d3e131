/*
包 metrics 提供基于 Prometheus 的管线指标采集能力，覆盖
阶段耗时、裁决调用、引擎候选量、验证结论、重试与缓存命中。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram 等
    Prometheus 向量指标，按管线阶段分组管理。nil Collector
    上的全部记录方法都是安全的空操作。

# 主要能力

  - 阶段指标：索引、检索、验证各阶段耗时 Histogram。
  - 裁决指标：judge 调用总数与耗时，按 validator/status 分组。
  - 验证指标：existence/relevance/consistency 结论计数，按 label 分组。
  - 重试与运行指标：重试次数、运行终态（completed/degraded/error）。
  - 缓存指标：阶段缓存命中与未命中计数，按 stage 分组。
*/
package metrics
