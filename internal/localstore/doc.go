// Package localstore reads directives from the two filesystem tiers: the
// project tier (<project>/.ai/directives) and the user tier
// (~/.context-kiwi/directives). It also provides the staging area sync uses
// to install fetched content into either tier.
package localstore
