package rpc

// IDRemapMiddleware gives every request a fresh unique id for the rest of the
// chain and restores the caller's id on the way back. Ids chosen by
// applications can therefore never collide on a shared connection.
func IDRemapMiddleware() Handler {
	return func(c *Context) {
		original := c.Request.ID
		c.Request.ID = NewID()
		c.Response.ID = c.Request.ID

		c.Next()

		c.Request.ID = original
		c.Response.ID = original
	}
}
