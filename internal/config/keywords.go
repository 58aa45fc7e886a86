package config

// DefaultKeywords 内置的主题关键词，订阅源文件未给出关键词时使用
var DefaultKeywords = map[string][]string{
	"ai": {
		"artificial intelligence", "AI", "machine learning", "neural", "GPT", "model", "LLM",
		"deep learning", "transformer", "Philippines", "Llama", "Gemini", "Claude", "ChatGPT",
		"fine-tune", "RAG", "NAIS", "DOST AI",
	},
	"cybersecurity": {
		"cybersecurity", "security", "vulnerability", "breach", "malware", "exploit", "ransomware",
		"hacking", "cyber", "threat", "Philippines", "LockBit", "Conti", "Emotet", "Qakbot",
		"BlackCat", "zero-day", "APT", "Cobalt Strike", "CIRT", "DICT-CERT", "PNP-ACG",
	},
	"blockchain": {
		"blockchain", "crypto", "bitcoin", "ethereum", "Web3", "NFT", "decentralized",
		"smart contract", "Philippines", "BTC", "Solana", "zkSync", "Arbitrum", "Optimism",
		"Axie Infinity", "P2E", "BSP", "PDAX", "Coins.ph", "Maya crypto",
	},
}
