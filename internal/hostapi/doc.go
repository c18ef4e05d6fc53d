// Package hostapi defines the host objects scripts can reach.
//
// Each constructor returns a proxy.Definition; the server installs them
// before the entry module runs:
//
//	com.mycompany.MyApp.printSomething("hi")   // logs through zap
//	com.mycompany.MyApp.addEventListener("request", fn)
//	host.HTML.select(page, "a.title")          // ["first", "second"]
//	host.Stats.mean([1, 2, 3])                 // 2
package hostapi
