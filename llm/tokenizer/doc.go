// Package tokenizer 为 Agent 上下文窗口与 LLM 请求估算 token 数。
// OpenAI 家族模型走 tiktoken 精确计数，其余模型使用区分 CJK 的字符估算器。
package tokenizer
