package routing

// defaultKeywords 内置默认路由表，profile 来源为空或不可用时使用
var defaultKeywords = map[string][]string{
	"architect": {
		"architecture", "design", "scalab", "microservice", "api", "interface", "module", "system",
	},
	"security": {
		"security", "auth", "vulnerab", "threat", "encrypt", "permission", "attack", "compliance",
	},
	"performance": {
		"performance", "latency", "throughput", "memory", "cpu", "optimi", "benchmark", "cache",
	},
	"data": {
		"data", "database", "sql", "schema", "query", "analytics", "pipeline", "storage",
	},
	"product": {
		"user", "customer", "feature", "roadmap", "market", "requirement", "priority", "value",
	},
	"operations": {
		"deploy", "kubernetes", "monitor", "incident", "infrastructure", "ci", "release", "observab",
	},
	"quality": {
		"test", "bug", "regression", "coverage", "quality", "edge case", "verify", "flaky",
	},
}
